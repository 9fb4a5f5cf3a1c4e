// Package insts provides SPU instruction definitions, decoding and encoding.
//
// Only the instructions that interact with the channel interface and the
// stop-and-signal mechanism are decoded, together with the immediate loads
// and branches needed to sequence them:
//   - Channel instructions: RDCH, WRCH, RCHCNT
//   - Control: STOP, STOPD, LNOP, NOP, SYNC, DSYNC
//   - Immediate loads: IL, ILA
//   - Branches: BR, BI
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x01A00E83) // RDCH R3, ch29
//	fmt.Printf("Op: %v, Channel: %d, RT: %d\n", inst.Op, inst.Channel, inst.RT)
package insts
