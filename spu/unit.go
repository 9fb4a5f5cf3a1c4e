package spu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/lv2"
	"github.com/sarchlab/spusim/timing/latency"
)

// InterruptThread is the PPU thread established to service an interrupt
// class of a raw unit. FastCall runs the handler synchronously.
type InterruptThread interface {
	IsAlive() bool
	FastCall(arg uint64)
}

// IntrTag is the state of one interrupt class.
type IntrTag struct {
	Enabled bool
	Thread  InterruptThread
	Arg     uint64
	Mask    uint64
	Stat    uint64
}

// MFCReg is one set of MFC command parameter registers. MFC1 is written
// through channels by the unit, MFC2 through problem-state MMIO.
type MFCReg struct {
	Name string

	LSA        *Channel
	EAH        *Channel
	EAL        *Channel
	SizeTag    *Channel
	CMDStatus  *Channel
	QueryType  *Channel
	QueryMask  *Channel
	TagStatus  *Channel
	AtomicStat *Channel
}

func newMFCReg(name string) *MFCReg {
	return &MFCReg{
		Name:       name,
		LSA:        NewChannel(1),
		EAH:        NewChannel(1),
		EAL:        NewChannel(1),
		SizeTag:    NewChannel(1),
		CMDStatus:  NewChannel(1),
		QueryType:  NewChannel(1),
		QueryMask:  NewChannel(1),
		TagStatus:  NewChannel(1),
		AtomicStat: NewChannel(1),
	}
}

func (r *MFCReg) reset() {
	for _, c := range []*Channel{
		r.LSA, r.EAH, r.EAL, r.SizeTag, r.CMDStatus,
		r.QueryType, r.QueryMask, r.TagStatus, r.AtomicStat,
	} {
		c.Reset()
	}
}

// Unit is one SPU: register file, local store, channels, MFC and event
// ports. Guest code runs on the goroutine calling Run; channel reads and
// writes must come from that goroutine. Mailboxes, signal notification,
// problem-state MMIO and event delivery are safe from any goroutine.
type Unit struct {
	id   uint32
	name string
	prio int32

	session *emu.Session
	memory  *emu.Memory
	log     logr.Logger
	lsBase  uint32
	lsSet   bool

	group   *Group
	num     int
	backend Backend
	hooks   Instrumentation
	latency *latency.Table

	// Regs is owned by the goroutine running the unit.
	Regs RegFile

	MFC1      *MFCReg
	MFC2      *MFCReg
	StallStat *Channel

	mfcMu     sync.Mutex
	stallList [32]stalledList
	stats     MFCStats
	fence     atomic.Uint64

	OutMbox     *Channel
	OutIntrMbox *Channel
	InMbox      *Channel
	Status      *Channel
	NPC         *Channel
	SNR         [2]*Channel
	snrCfg      atomic.Uint64

	ports    [NumPorts]*lv2.EventPort
	queuesMu sync.Mutex
	queues   map[uint64]*lv2.EventQueue

	eventMask     atomic.Uint32
	events        atomic.Uint32
	eventsChanged emu.Broadcast

	decStart atomic.Uint64
	decValue atomic.Uint32

	intrMu   sync.Mutex
	intrTags [3]IntrTag

	exitStatus atomic.Uint32
	runCntl    atomic.Uint32
	cycles     atomic.Uint64

	stateMu    sync.Mutex
	running    bool
	started    bool
	halt       chan struct{}
	haltClosed bool
}

// Option configures a Unit.
type Option func(*Unit)

// WithGroup makes the unit a member of g. Without it the unit is a raw
// SPU driven through problem-state MMIO and interrupt threads.
func WithGroup(g *Group) Option {
	return func(u *Unit) {
		u.group = g
	}
}

// WithLogger sets the unit logger. The session logger is used otherwise.
func WithLogger(log logr.Logger) Option {
	return func(u *Unit) {
		u.log = log
	}
}

// WithBackend sets the execution strategy.
func WithBackend(b Backend) Option {
	return func(u *Unit) {
		u.backend = b
	}
}

// WithTiming sets the cost model used for MFC accounting.
func WithTiming(config *latency.TimingConfig) Option {
	return func(u *Unit) {
		u.latency = latency.NewTableWithConfig(config)
	}
}

// WithInstrumentation replaces the hook table.
func WithInstrumentation(i Instrumentation) Option {
	return func(u *Unit) {
		u.hooks = i
	}
}

// WithLocalStore places the local store at base instead of allocating it
// from the session heap.
func WithLocalStore(base uint32) Option {
	return func(u *Unit) {
		u.lsBase = base
		u.lsSet = true
	}
}

// WithName sets the thread name.
func WithName(name string) Option {
	return func(u *Unit) {
		u.name = name
	}
}

// WithPriority sets the priority used in sleep queues.
func WithPriority(prio int32) Option {
	return func(u *Unit) {
		u.prio = prio
	}
}

// NewUnit creates a stopped unit in session.
func NewUnit(session *emu.Session, opts ...Option) (*Unit, error) {
	u := &Unit{
		session:     session,
		memory:      session.Memory(),
		log:         session.Logger(),
		MFC1:        newMFCReg("MFC1"),
		MFC2:        newMFCReg("MFC2"),
		StallStat:   NewChannel(1),
		OutMbox:     NewChannel(1),
		OutIntrMbox: NewChannel(1),
		InMbox:      NewChannel(4),
		Status:      NewChannel(1),
		NPC:         NewChannel(1),
		SNR:         [2]*Channel{NewChannel(1), NewChannel(1)},
		queues:      make(map[uint64]*lv2.EventQueue),
		halt:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(u)
	}

	if !u.lsSet {
		base, err := u.memory.Alloc(LocalStoreSize, LocalStoreSize)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate local store: %w", err)
		}
		u.lsBase = base
	}
	if u.latency == nil {
		u.latency = latency.NewTable()
	}
	if u.backend == nil {
		u.backend = NewInterpreter()
	}
	if u.hooks == nil {
		u.hooks = NewTrapTable(u)
	}
	for i := range u.ports {
		u.ports[i] = lv2.NewEventPort()
	}

	u.id = session.IDs().Add(u)
	if u.name == "" {
		u.name = fmt.Sprintf("SPU[0x%x]", u.id)
	}
	if u.group != nil {
		u.num = u.group.add(u)
	}
	u.log = u.log.WithName("spu").WithValues("unit", u.id)

	u.InitRegs()
	return u, nil
}

// ID returns the thread ID of the unit.
func (u *Unit) ID() uint32 { return u.id }

// Name returns the thread name.
func (u *Unit) Name() string { return u.name }

// Priority returns the sleep queue priority.
func (u *Unit) Priority() int32 { return u.prio }

// Session returns the owning session.
func (u *Unit) Session() *emu.Session { return u.session }

// Logger returns the unit logger.
func (u *Unit) Logger() logr.Logger { return u.log }

// Group returns the owning group, or nil for a raw unit.
func (u *Unit) Group() *Group { return u.group }

// Hooks returns the hook table.
func (u *Unit) Hooks() Instrumentation { return u.hooks }

// Latency returns the cost model.
func (u *Unit) Latency() *latency.Table { return u.latency }

// LSBase returns the guest address of local store offset 0.
func (u *Unit) LSBase() uint32 { return u.lsBase }

// ExitStatus returns the last stop-and-signal code.
func (u *Unit) ExitStatus() uint32 { return u.exitStatus.Load() }

// Cycles returns the cycles accounted to this unit so far.
func (u *Unit) Cycles() uint64 { return u.cycles.Load() }

// AddCycles charges n cycles to the unit.
func (u *Unit) AddCycles(n uint64) { u.cycles.Add(n) }

func (u *Unit) lsAddr(lsa uint32) uint32 {
	return u.lsBase + lsa&lsMask
}

// ReadLS copies len(p) bytes of local store at lsa into p.
func (u *Unit) ReadLS(lsa uint32, p []byte) { u.memory.Read(u.lsAddr(lsa), p) }

// WriteLS copies p into local store at lsa.
func (u *Unit) WriteLS(lsa uint32, p []byte) { u.memory.Write(u.lsAddr(lsa), p) }

// ReadLS8 reads a byte of local store.
func (u *Unit) ReadLS8(lsa uint32) uint8 { return u.memory.Read8(u.lsAddr(lsa)) }

// ReadLS16 reads a halfword of local store.
func (u *Unit) ReadLS16(lsa uint32) uint16 { return u.memory.Read16(u.lsAddr(lsa)) }

// ReadLS32 reads a word of local store.
func (u *Unit) ReadLS32(lsa uint32) uint32 { return u.memory.Read32(u.lsAddr(lsa)) }

// ReadLS64 reads a doubleword of local store.
func (u *Unit) ReadLS64(lsa uint32) uint64 { return u.memory.Read64(u.lsAddr(lsa)) }

// ReadLS128 reads a quadword of local store.
func (u *Unit) ReadLS128(lsa uint32) [16]byte { return u.memory.Read128(u.lsAddr(lsa)) }

// WriteLS8 writes a byte of local store.
func (u *Unit) WriteLS8(lsa uint32, v uint8) { u.memory.Write8(u.lsAddr(lsa), v) }

// WriteLS16 writes a halfword of local store.
func (u *Unit) WriteLS16(lsa uint32, v uint16) { u.memory.Write16(u.lsAddr(lsa), v) }

// WriteLS32 writes a word of local store.
func (u *Unit) WriteLS32(lsa uint32, v uint32) { u.memory.Write32(u.lsAddr(lsa), v) }

// WriteLS64 writes a doubleword of local store.
func (u *Unit) WriteLS64(lsa uint32, v uint64) { u.memory.Write64(u.lsAddr(lsa), v) }

// WriteLS128 writes a quadword of local store.
func (u *Unit) WriteLS128(lsa uint32, v [16]byte) { u.memory.Write128(u.lsAddr(lsa), v) }

// Reset zeroes the local store, registers and channels, and drops MFC
// state and reservations.
func (u *Unit) Reset() {
	u.stateMu.Lock()
	u.started = false
	u.stateMu.Unlock()

	u.Regs.Reset()
	u.memory.Zero(u.lsBase, LocalStoreSize)

	u.mfcMu.Lock()
	u.MFC1.reset()
	u.MFC2.reset()
	u.stallList = [32]stalledList{}
	u.mfcMu.Unlock()
	u.StallStat.Reset()

	for _, c := range []*Channel{u.OutMbox, u.OutIntrMbox, u.InMbox, u.Status, u.NPC, u.SNR[0], u.SNR[1]} {
		c.Reset()
	}

	u.memory.Reservations().Release(u.id)
	u.decStart.Store(0)
	u.decValue.Store(0)
	u.exitStatus.Store(0)
	u.InitRegs()
}

// InitRegs puts the unit in its initial architectural state: stack
// pointer set, SNR OR-mode off, status stopped, queries and events clear.
func (u *Unit) InitRegs() {
	u.Regs.WriteReg(1, InitialStackPointer)

	u.snrCfg.Store(0)
	u.Status.SetValue(StatusStopped)

	u.MFC2.QueryType.SetValue(0)
	u.MFC1.CMDStatus.SetValue(0)
	u.MFC2.CMDStatus.SetValue(0)
	u.MFC1.TagStatus.SetValue(0)
	u.MFC2.TagStatus.SetValue(0)

	u.eventMask.Store(0)
	u.events.Store(0)
	u.eventsChanged.Notify()
}

// Close disconnects every event port unless the session has stopped.
func (u *Unit) Close() {
	if u.session.IsStopped() {
		return
	}

	for _, p := range u.ports {
		if p.Queue() != nil {
			_ = p.Disconnect()
		}
	}
	u.memory.Reservations().Release(u.id)
}

// IsRunning reports whether the unit is executing guest code.
func (u *Unit) IsRunning() bool {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	return u.running
}

// Start marks the unit running and sets its status without entering the
// run loop. Callers that drive a Backend themselves start the unit first.
// A later Run keeps a Stop issued after Start.
func (u *Unit) Start() {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	u.startLocked()
	u.started = true
}

func (u *Unit) startLocked() {
	if u.haltClosed {
		u.halt = make(chan struct{})
		u.haltClosed = false
	}
	u.running = true
	u.Status.SetValue(StatusRunning)
}

// enter prepares the run loop. A unit already armed by Start is entered
// as it is.
func (u *Unit) enter() {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	if u.started {
		u.started = false
		return
	}
	u.startLocked()
}

// startAt sets PC and starts the unit unless it is already running.
func (u *Unit) startAt(pc uint32) bool {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	if u.running {
		return false
	}
	u.Regs.PC = pc
	u.startLocked()
	return true
}

// Stop ends guest execution. Blocking channel operations of the unit
// return.
func (u *Unit) Stop() {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	u.running = false
	if !u.haltClosed {
		close(u.halt)
		u.haltClosed = true
	}
}

func (u *Unit) halted() <-chan struct{} {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	return u.halt
}

// wait blocks until changed fires. It returns false if the session or
// the unit stopped first.
func (u *Unit) wait(changed <-chan struct{}) bool {
	halt := u.halted()

	select {
	case <-changed:
		return true
	case <-u.session.Done():
		return false
	case <-halt:
		return false
	}
}

func (u *Unit) popBlocking(c *Channel, exchange bool) (uint32, bool) {
	for {
		changed := c.Changed()

		var (
			v  uint32
			ok bool
		)
		if exchange {
			v, ok = c.PopExchange()
		} else {
			v, ok = c.Pop()
		}
		if ok {
			return v, true
		}

		if !u.wait(changed) {
			return 0, false
		}
	}
}

func (u *Unit) pushBlocking(c *Channel, v uint32) bool {
	for {
		changed := c.Changed()
		if c.Push(v) {
			return true
		}
		if !u.wait(changed) {
			return false
		}
	}
}

// Run executes guest code through the backend until the unit stops, the
// session stops, ctx is cancelled, or the backend fails. A backend error
// pauses the session.
func (u *Unit) Run(ctx context.Context) error {
	u.enter()
	return u.loop(ctx)
}

func (u *Unit) loop(ctx context.Context) error {
	defer context.AfterFunc(ctx, u.Stop)()

	if u.group != nil {
		if _, exited := u.group.ExitStatus(); exited {
			u.Stop()
		}
	}

	for u.IsRunning() {
		if u.session.IsStopped() {
			u.Stop()
			return emu.ErrSessionStopped
		}

		resumed := u.session.Resumed()
		if u.session.IsPaused() {
			select {
			case <-resumed:
			case <-u.session.Done():
			case <-u.halted():
			}
			continue
		}

		if err := u.backend.Step(u); err != nil {
			u.Stop()
			u.session.Pause(err)
			return err
		}
	}

	if u.Status.Value() == StatusRunning {
		u.Status.SetValue(StatusStopped)
	}
	return ctx.Err()
}

// FastCall runs guest code at lsa until it halts and restores PC, the
// link register and the stack pointer afterwards. Address 0 is patched
// with "stop 0x2" so that returning through a zero link register halts.
func (u *Unit) FastCall(ctx context.Context, lsa uint32) error {
	u.WriteLS32(0, StopHalt)

	oldPC := u.Regs.PC
	oldLR := u.Regs.GPR[0]
	oldSP := u.Regs.GPR[1]

	u.Regs.PC = lsa & lsInstrMask
	u.Regs.WriteReg(0, 0)

	err := u.Run(ctx)

	u.Regs.PC = oldPC
	u.Regs.GPR[0] = oldLR
	u.Regs.GPR[1] = oldSP

	return err
}

// SetEvents raises event bits and wakes RdEventStat readers.
func (u *Unit) SetEvents(bits uint32) {
	u.events.Or(bits)
	u.eventsChanged.Notify()
}

// Events returns the raw pending event bits.
func (u *Unit) Events() uint32 { return u.events.Load() }

// EventMask returns the event mask.
func (u *Unit) EventMask() uint32 { return u.eventMask.Load() }

// CheckEvents reports whether an unmasked event is pending.
func (u *Unit) CheckEvents() bool {
	return u.events.Load()&u.eventMask.Load() != 0
}

func (u *Unit) reservationLost() {
	u.SetEvents(EventLR)
}

// SetSNRConfig sets the OR-mode bits of the signal notification registers:
// bit 0 for SNR1, bit 1 for SNR2.
func (u *Unit) SetSNRConfig(cfg uint64) { u.snrCfg.Store(cfg) }

// SNRConfig returns the OR-mode bits.
func (u *Unit) SNRConfig() uint64 { return u.snrCfg.Load() }

// WriteSNR delivers value to signal notification register index (0 or 1),
// OR-ing it in when that register is in OR mode.
func (u *Unit) WriteSNR(index int, value uint32) {
	index &= 1
	if u.snrCfg.Load()&(1<<uint(index)) != 0 {
		u.SNR[index].PushUncondOR(value)
	} else {
		u.SNR[index].PushUncond(value)
	}
}

// SetInterruptThread establishes t as the handler of interrupt class.
func (u *Unit) SetInterruptThread(class int, t InterruptThread, arg uint64) {
	u.intrMu.Lock()
	defer u.intrMu.Unlock()

	u.intrTags[class].Thread = t
	u.intrTags[class].Arg = arg
	u.intrTags[class].Enabled = t != nil
}

// SetInterruptMask sets the mask of interrupt class.
func (u *Unit) SetInterruptMask(class int, mask uint64) {
	u.intrMu.Lock()
	defer u.intrMu.Unlock()

	u.intrTags[class].Mask = mask
}

// ClearInterruptStat clears bits of the status of interrupt class.
func (u *Unit) ClearInterruptStat(class int, bits uint64) {
	u.intrMu.Lock()
	defer u.intrMu.Unlock()

	u.intrTags[class].Stat &^= bits
}

// InterruptTag returns a copy of interrupt class state.
func (u *Unit) InterruptTag(class int) IntrTag {
	u.intrMu.Lock()
	defer u.intrMu.Unlock()

	return u.intrTags[class]
}
