package spu

import "errors"

// Fatal conditions. They pause the session.
var (
	ErrUnknownCommand     = errors.New("spu: unknown MFC command")
	ErrUnknownDMA         = errors.New("spu: unknown DMA command")
	ErrUnknownStopCode    = errors.New("spu: unknown stop code")
	ErrMissingHook        = errors.New("spu: no hook registered at PC")
	ErrDoubleInterrupt    = errors.New("spu: interrupt thread was alive")
	ErrUnknownInstruction = errors.New("spu: unknown instruction")
)

// Anomalies. They are logged and the operation yields a best-effort result.
var (
	ErrUnknownChannel = errors.New("spu: unknown or illegal channel")
	ErrGroupMMIO      = errors.New("spu: invalid thread group MMIO access")
	ErrEmptyMailbox   = errors.New("spu: outbound mailbox is empty")
	ErrStallTag       = errors.New("spu: invalid list stall tag")
	ErrInvalidList    = errors.New("spu: invalid DMA list")
	ErrNoGroup        = errors.New("spu: unit is not in a thread group")
	ErrBadAddress     = errors.New("spu: effective address out of range")
	ErrUnknownMMIO    = errors.New("spu: unknown problem state register")
)
