package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/spusim/spu"
)

var statusNames = map[uint32]string{
	spu.StatusStopped:       "stopped",
	spu.StatusRunning:       "running",
	spu.StatusStoppedByStop: "stopped-by-stop",
	spu.StatusStoppedByHalt: "stopped-by-halt",
}

func statusName(s uint32) string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", s)
}

// WriteReport prints per-unit MFC statistics and the group outcome.
func WriteReport(w io.Writer, sim *Simulation) error {
	fmt.Fprintf(w, "Group: %s\n", sim.Group.Name())
	if status, exited := sim.Group.ExitStatus(); exited {
		fmt.Fprintf(w, "Group exit status: 0x%x\n", status)
	} else {
		fmt.Fprintf(w, "Group exit status: none\n")
	}
	if reason := sim.Session.PauseReason(); reason != nil {
		fmt.Fprintf(w, "Session paused: %v\n", reason)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(tw, "unit\tstatus\tstop\tcycles\tcmds\tputs\tgets\tbytes\tlists\telems\tstalls\tseqerr\tatomics\tllc-fail\t")

	for _, u := range sim.Units {
		st := u.Stats()
		fmt.Fprintf(tw, "%s\t%s\t0x%x\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			u.Name(),
			statusName(u.Status.Value()),
			u.ExitStatus(),
			u.Cycles(),
			st.Commands,
			st.Puts,
			st.Gets,
			st.BytesMoved,
			st.ListCommands,
			st.ListElements,
			st.ListStalls,
			st.SequenceErrors,
			st.AtomicCommands,
			st.PutLLCFailures,
		)
	}

	return tw.Flush()
}
