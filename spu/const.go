// Package spu emulates a Synergistic Processor Unit: its channel
// interface, the MFC DMA engine, stop-and-signal handling and event ports.
package spu

// Architectural channels.
const (
	SPURdEventStat     = 0
	SPUWrEventMask     = 1
	SPUWrEventAck      = 2
	SPURdSigNotify1    = 3
	SPURdSigNotify2    = 4
	SPUWrDec           = 7
	SPURdDec           = 8
	MFCWrMSSyncReq     = 9
	SPURdEventMask     = 11
	MFCRdTagMask       = 12
	SPURdMachStat      = 13
	SPUWrSRR0          = 14
	SPURdSRR0          = 15
	MFCLSA             = 16
	MFCEAH             = 17
	MFCEAL             = 18
	MFCSize            = 19
	MFCTagID           = 20
	MFCCmd             = 21
	MFCWrTagMask       = 22
	MFCWrTagUpdate     = 23
	MFCRdTagStat       = 24
	MFCRdListStallStat = 25
	MFCWrListStallAck  = 26
	MFCRdAtomicStat    = 27
	SPUWrOutMbox       = 28
	SPURdInMbox        = 29
	SPUWrOutIntrMbox   = 30
)

var channelNames = map[uint32]string{
	SPURdEventStat:     "SPU_RdEventStat",
	SPUWrEventMask:     "SPU_WrEventMask",
	SPUWrEventAck:      "SPU_WrEventAck",
	SPURdSigNotify1:    "SPU_RdSigNotify1",
	SPURdSigNotify2:    "SPU_RdSigNotify2",
	SPUWrDec:           "SPU_WrDec",
	SPURdDec:           "SPU_RdDec",
	MFCWrMSSyncReq:     "MFC_WrMSSyncReq",
	SPURdEventMask:     "SPU_RdEventMask",
	MFCRdTagMask:       "MFC_RdTagMask",
	SPURdMachStat:      "SPU_RdMachStat",
	SPUWrSRR0:          "SPU_WrSRR0",
	SPURdSRR0:          "SPU_RdSRR0",
	MFCLSA:             "MFC_LSA",
	MFCEAH:             "MFC_EAH",
	MFCEAL:             "MFC_EAL",
	MFCSize:            "MFC_Size",
	MFCTagID:           "MFC_TagID",
	MFCCmd:             "MFC_Cmd",
	MFCWrTagMask:       "MFC_WrTagMask",
	MFCWrTagUpdate:     "MFC_WrTagUpdate",
	MFCRdTagStat:       "MFC_RdTagStat",
	MFCRdListStallStat: "MFC_RdListStallStat",
	MFCWrListStallAck:  "MFC_WrListStallAck",
	MFCRdAtomicStat:    "MFC_RdAtomicStat",
	SPUWrOutMbox:       "SPU_WrOutMbox",
	SPURdInMbox:        "SPU_RdInMbox",
	SPUWrOutIntrMbox:   "SPU_WrOutIntrMbox",
}

// ChannelName returns the architectural name of channel ch.
func ChannelName(ch uint32) string {
	if name, ok := channelNames[ch]; ok {
		return name
	}
	return "?"
}

// Event bits.
const (
	EventMS = 0x1000
	EventA  = 0x800
	EventLR = 0x400
	EventS1 = 0x200
	EventS2 = 0x100
	EventLE = 0x80
	EventME = 0x40
	EventTM = 0x20
	EventMB = 0x10
	EventQV = 0x4
	EventSN = 0x2
	EventTG = 0x1

	EventImplemented = EventLR
)

// SPU run control values.
const (
	RunCntlStop     = 0
	RunCntlRunnable = 1
)

// SPU status values.
const (
	StatusStopped           = 0x0
	StatusRunning           = 0x1
	StatusStoppedByStop     = 0x2
	StatusStoppedByHalt     = 0x4
	StatusWaitingForChannel = 0x8
	StatusSingleStep        = 0x10
)

// SPU thread group MMIO window.
const (
	ThreadBaseLow  = 0xf0000000
	ThreadBaseMask = 0x0fffffff
	ThreadOffset   = 0x00100000
	ThreadSNR1     = 0x05400c
	ThreadSNR2     = 0x05c00c
)

// Problem-state register offsets.
const (
	MFCLSAOffs          = 0x3004
	MFCEAHOffs          = 0x3008
	MFCEALOffs          = 0x300C
	MFCSizeTagOffs      = 0x3010
	MFCClassCMDOffs     = 0x3014
	MFCCMDStatusOffs    = 0x3014
	MFCQStatusOffs      = 0x3104
	PrxyQueryTypeOffs   = 0x3204
	PrxyQueryMaskOffs   = 0x321C
	PrxyTagStatusOffs   = 0x322C
	SPUOutMBoxOffs      = 0x4004
	SPUInMBoxOffs       = 0x400C
	SPUMBoxStatusOffs   = 0x4014
	SPURunCntlOffs      = 0x401C
	SPUStatusOffs       = 0x4024
	SPUNPCOffs          = 0x4034
	SPURdSigNotify1Offs = 0x1400C
	SPURdSigNotify2Offs = 0x1C00C
)

// MFC command opcodes.
const (
	MFCPut      = 0x20
	MFCPutB     = 0x21
	MFCPutF     = 0x22
	MFCPutL     = 0x24
	MFCPutR     = 0x30
	MFCPutRL    = 0x34
	MFCGet      = 0x40
	MFCGetB     = 0x41
	MFCGetF     = 0x42
	MFCGetL     = 0x44
	MFCSndSig   = 0xA0
	MFCPutLLUC  = 0xB0
	MFCPutLLC   = 0xB4
	MFCPutQLLUC = 0xB8
	MFCBarrier  = 0xC0
	MFCEieio    = 0xC8
	MFCSync     = 0xCC
	MFCGetLLAR  = 0xD0
)

// MFC command modifier bits.
const (
	MFCBarrierMask = 0x01
	MFCFenceMask   = 0x02
	MFCListMask    = 0x04
	MFCStartMask   = 0x08
	MFCResultMask  = 0x10
	MFCMaskCmd     = 0xffff
)

// MFC enqueue status.
const (
	DMAEnqueueSuccessful = 0
	DMASequenceError     = 2
	DMAQueueFull         = 3
)

// Atomic command status.
const (
	PutLLCSuccess  = 0
	PutLLCFailure  = 1
	PutLLUCSuccess = 2
	GetLLARSuccess = 4
)

// Proxy queue status reported through MFC_QStatus.
const (
	ProxyQueueEmptyFlag = 0x80000000
	ProxyQueueSpace     = 0x8
)

// SPUQ event keys are the queue number tagged with "SPUQ".
const spuqTag = 0x5350555100000000

// SPUQKey returns the event key of SPU queue number num.
func SPUQKey(num uint32) uint64 {
	return uint64(num) | spuqTag
}

// Stop-and-signal codes handled by the unit.
const (
	StopYield        = 0x001
	StopHalt         = 0x002
	StopHook         = 0x003
	StopGroupExit    = 0x101
	StopThreadExit   = 0x102
	StopReceiveEvent = 0x110
)

// LocalStoreSize is the size of a unit's local store.
const LocalStoreSize = 0x40000

// Local store address masks.
const (
	lsMask      = 0x3ffff
	lsQuadMask  = 0x3fff0
	lsInstrMask = 0x3fffc
)

// InitialStackPointer is loaded into GPR1 by InitRegs.
const InitialStackPointer = 0x3FFF0
