// Package lv2 implements the kernel synchronization objects that SPU code
// talks to: event queues and ports, event flags and semaphores.
package lv2

import (
	"errors"
	"fmt"

	"github.com/sarchlab/spusim/emu"
)

// Code is a guest-visible status word. Every non-OK value implements error.
type Code uint32

// Status codes.
const (
	OK         Code = 0
	EAGAIN     Code = 0x80010001
	EINVAL     Code = 0x80010002
	ENOSYS     Code = 0x80010003
	ENOMEM     Code = 0x80010004
	ESRCH      Code = 0x80010005
	ENOENT     Code = 0x80010006
	ENOEXEC    Code = 0x80010007
	EDEADLK    Code = 0x80010008
	EPERM      Code = 0x80010009
	EBUSY      Code = 0x8001000A
	ETIMEDOUT  Code = 0x8001000B
	EABORT     Code = 0x8001000C
	EFAULT     Code = 0x8001000D
	ESTAT      Code = 0x8001000F
	EALIGN     Code = 0x80010010
	EKRESOURCE Code = 0x80010011
	EISDIR     Code = 0x80010012
	ECANCELED  Code = 0x80010013
	EEXIST     Code = 0x80010014
	EISCONN    Code = 0x80010015
	ENOTCONN   Code = 0x80010016
)

var codeNames = map[Code]string{
	OK:         "CELL_OK",
	EAGAIN:     "CELL_EAGAIN",
	EINVAL:     "CELL_EINVAL",
	ENOSYS:     "CELL_ENOSYS",
	ENOMEM:     "CELL_ENOMEM",
	ESRCH:      "CELL_ESRCH",
	ENOENT:     "CELL_ENOENT",
	ENOEXEC:    "CELL_ENOEXEC",
	EDEADLK:    "CELL_EDEADLK",
	EPERM:      "CELL_EPERM",
	EBUSY:      "CELL_EBUSY",
	ETIMEDOUT:  "CELL_ETIMEDOUT",
	EABORT:     "CELL_EABORT",
	EFAULT:     "CELL_EFAULT",
	ESTAT:      "CELL_ESTAT",
	EALIGN:     "CELL_EALIGN",
	EKRESOURCE: "CELL_EKRESOURCE",
	EISDIR:     "CELL_EISDIR",
	ECANCELED:  "CELL_ECANCELED",
	EEXIST:     "CELL_EEXIST",
	EISCONN:    "CELL_EISCONN",
	ENOTCONN:   "CELL_ENOTCONN",
}

func (c Code) Error() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CELL_ERROR(0x%08x)", uint32(c))
}

// CodeOf maps an error returned by this package to the status word the
// guest observes. A wait cut short by a session stop reports OK.
func CodeOf(err error) Code {
	if err == nil || errors.Is(err, emu.ErrSessionStopped) {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return EFAULT
}
