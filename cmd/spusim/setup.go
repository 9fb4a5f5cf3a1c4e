package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/loader"
	"github.com/sarchlab/spusim/lv2"
	"github.com/sarchlab/spusim/spu"
	"github.com/sarchlab/spusim/timing/latency"
)

const defaultQueueSize = 32

// Simulation is a scenario instantiated on a session.
type Simulation struct {
	Session *emu.Session
	Kernel  *lv2.Kernel
	Group   *spu.Group
	Units   []*spu.Unit

	// IDs maps scenario names of queues and flags to kernel object IDs.
	IDs map[string]uint32
}

// Build creates the kernel objects, units and bindings a scenario
// describes. Units are left stopped. A nil config selects the default
// timing.
func Build(
	s *Scenario,
	session *emu.Session,
	config *latency.TimingConfig,
	log logr.Logger,
) (*Simulation, error) {
	if config == nil {
		config = latency.DefaultTimingConfig()
	}

	sim := &Simulation{
		Session: session,
		Kernel:  lv2.NewKernel(session),
		Group:   spu.NewGroup(s.Name),
		IDs:     make(map[string]uint32),
	}

	queues, err := sim.createObjects(s)
	if err != nil {
		return nil, err
	}

	for _, m := range s.Memory {
		for i, w := range m.Words {
			session.Memory().Write32(m.Addr+uint32(4*i), w)
		}
	}

	for _, uc := range s.Units {
		u, err := sim.createUnit(s, &uc, config, log)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.Name, err)
		}

		if err := bindUnit(u, &uc, queues); err != nil {
			return nil, fmt.Errorf("unit %s: %w", uc.Name, err)
		}

		sim.Units = append(sim.Units, u)
	}

	return sim, nil
}

func (sim *Simulation) createObjects(s *Scenario) (map[string]*lv2.EventQueue, error) {
	queues := make(map[string]*lv2.EventQueue)

	for _, qc := range s.Queues {
		attr := lv2.EventQueueAttr{
			Protocol: lv2.ProtocolFIFO,
			Type:     lv2.QueueTypeSPU,
			Size:     qc.Size,
		}
		if qc.Priority {
			attr.Protocol = lv2.ProtocolPriority
		}
		if attr.Size == 0 {
			attr.Size = defaultQueueSize
		}

		id, q, err := sim.Kernel.EventQueueCreate(attr)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", qc.Name, err)
		}

		sim.IDs[qc.Name] = id
		queues[qc.Name] = q
	}

	for _, fc := range s.Flags {
		id, err := sim.Kernel.EventFlagCreate(fc.Initial, lv2.ProtocolFIFO)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", fc.Name, err)
		}
		sim.IDs[fc.Name] = id
	}

	for _, ei := range s.Events {
		ev := lv2.Event{
			Source: ei.Source,
			Data1:  ei.Data[0],
			Data2:  ei.Data[1],
			Data3:  ei.Data[2],
		}
		if !queues[ei.Queue].Push(ev) {
			return nil, fmt.Errorf("event: queue %s is full", ei.Queue)
		}
	}

	return queues, nil
}

func (sim *Simulation) createUnit(
	s *Scenario,
	uc *UnitConfig,
	config *latency.TimingConfig,
	log logr.Logger,
) (*spu.Unit, error) {
	opts := []spu.Option{
		spu.WithGroup(sim.Group),
		spu.WithTiming(config),
		spu.WithPriority(uc.Priority),
	}
	if uc.Name != "" {
		opts = append(opts, spu.WithName(uc.Name))
	}

	var prog *loader.Program

	switch {
	case uc.Script != "":
		opts = append(opts, spu.WithBackend(NewLuaBackend(uc.Name, uc.Script, sim.IDs, log)))

	case uc.ScriptFile != "":
		src, err := os.ReadFile(s.path(uc.ScriptFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		opts = append(opts, spu.WithBackend(NewLuaBackend(uc.ScriptFile, string(src), sim.IDs, log)))

	case uc.ELF != "":
		var err error
		prog, err = loader.Load(s.path(uc.ELF))
		if err != nil {
			return nil, err
		}
	}

	u, err := spu.NewUnit(sim.Session, opts...)
	if err != nil {
		return nil, err
	}

	switch {
	case prog != nil:
		prog.LoadInto(u)
		u.Regs.PC = prog.EntryPoint

	case len(uc.Program) > 0:
		u.WriteLS(uc.Entry, uc.programBytes())
		u.Regs.PC = uc.Entry
	}

	return u, nil
}

func bindUnit(u *spu.Unit, uc *UnitConfig, queues map[string]*lv2.EventQueue) error {
	for _, p := range uc.Ports {
		if err := u.ConnectPort(p.Port, queues[p.Queue]); err != nil {
			return fmt.Errorf("port %d: %w", p.Port, err)
		}
	}

	for _, q := range uc.SPUQueues {
		if err := u.BindQueue(q.Num, queues[q.Queue]); err != nil {
			return fmt.Errorf("spu queue %d: %w", q.Num, err)
		}
	}

	u.SetSNRConfig(uc.SNRConfig)

	for _, v := range uc.InMbox {
		if !u.InMbox.Push(v) {
			return fmt.Errorf("inbound mailbox overflow")
		}
	}
	for _, v := range uc.SNR1 {
		u.WriteSNR(0, v)
	}
	for _, v := range uc.SNR2 {
		u.WriteSNR(1, v)
	}

	return nil
}

// Run runs the group until every member exits or ctx ends. A fatal
// condition pauses the session, which stops the group and returns the
// pause reason.
func (sim *Simulation) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-sim.Session.Paused():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := sim.Group.Run(ctx)
	if reason := sim.Session.PauseReason(); reason != nil {
		return fmt.Errorf("session paused: %w", reason)
	}
	return err
}

// Close releases the units and stops the session.
func (sim *Simulation) Close() {
	sim.Group.Close()
	sim.Session.Stop()
}
