package main

import (
	"fmt"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/spusim/spu"
)

// LuaBackend runs a Lua script as the guest program of a unit. The script
// drives the unit through its channel interface the way SPU code would.
// When the script returns while the unit still runs, the unit exits as if
// it executed "stop 0x102".
type LuaBackend struct {
	name   string
	source string
	ids    map[string]uint32
	log    logr.Logger
}

// NewLuaBackend creates a backend running source. ids names kernel objects
// the script can look up with id().
func NewLuaBackend(name, source string, ids map[string]uint32, log logr.Logger) *LuaBackend {
	return &LuaBackend{
		name:   name,
		source: source,
		ids:    ids,
		log:    log.WithName("lua").WithValues("script", name),
	}
}

// Step runs the script to completion on a fresh interpreter state.
func (b *LuaBackend) Step(u *spu.Unit) error {
	L := lua.NewState()
	defer L.Close()

	b.install(L, u)

	if err := L.DoString(b.source); err != nil {
		return fmt.Errorf("script %s: %w", b.name, err)
	}

	if u.IsRunning() {
		u.StopAndSignal(spu.StopThreadExit)
	}

	return nil
}

func (b *LuaBackend) install(L *lua.LState, u *spu.Unit) {
	channels := L.NewTable()
	for ch := uint32(0); ch <= spu.SPUWrOutIntrMbox; ch++ {
		if name := spu.ChannelName(ch); name != "?" {
			channels.RawSetString(name, lua.LNumber(ch))
		}
	}
	L.SetGlobal("ch", channels)

	fns := map[string]lua.LGFunction{
		"rdch": func(L *lua.LState) int {
			L.Push(lua.LNumber(u.ReadChannel(checkU32(L, 1))))
			return 1
		},
		"wrch": func(L *lua.LState) int {
			u.WriteChannel(checkU32(L, 1), checkU32(L, 2))
			return 0
		},
		"rchcnt": func(L *lua.LState) int {
			L.Push(lua.LNumber(u.ChannelCount(checkU32(L, 1))))
			return 1
		},
		"stop": func(L *lua.LState) int {
			u.StopAndSignal(checkU32(L, 1))
			return 0
		},
		"mfc": func(L *lua.LState) int {
			ea := uint64(L.CheckNumber(3))
			u.WriteChannel(spu.MFCLSA, checkU32(L, 2))
			u.WriteChannel(spu.MFCEAH, uint32(ea>>32))
			u.WriteChannel(spu.MFCEAL, uint32(ea))
			u.WriteChannel(spu.MFCSize, checkU32(L, 4))
			u.WriteChannel(spu.MFCTagID, checkU32(L, 5))
			u.WriteChannel(spu.MFCCmd, checkU32(L, 1))
			return 0
		},
		"ls_read32": func(L *lua.LState) int {
			L.Push(lua.LNumber(u.ReadLS32(checkU32(L, 1))))
			return 1
		},
		"ls_write32": func(L *lua.LState) int {
			u.WriteLS32(checkU32(L, 1), checkU32(L, 2))
			return 0
		},
		"mem_read32": func(L *lua.LState) int {
			L.Push(lua.LNumber(u.Session().Memory().Read32(checkU32(L, 1))))
			return 1
		},
		"mem_write32": func(L *lua.LState) int {
			u.Session().Memory().Write32(checkU32(L, 1), checkU32(L, 2))
			return 0
		},
		"running": func(L *lua.LState) int {
			L.Push(lua.LBool(u.IsRunning()))
			return 1
		},
		"id": func(L *lua.LState) int {
			name := L.CheckString(1)
			id, ok := b.ids[name]
			if !ok {
				L.ArgError(1, fmt.Sprintf("unknown object %q", name))
				return 0
			}
			L.Push(lua.LNumber(id))
			return 1
		},
		"log": func(L *lua.LState) int {
			b.log.Info(L.CheckString(1), "unit", u.Name())
			return 0
		},
	}

	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func checkU32(L *lua.LState, n int) uint32 {
	return uint32(uint64(L.CheckNumber(n)))
}
