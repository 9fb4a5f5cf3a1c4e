package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Scenario describes a thread group, its guest code and the kernel objects
// it talks to.
type Scenario struct {
	Name   string        `yaml:"name"`
	Units  []UnitConfig  `yaml:"units"`
	Queues []QueueConfig `yaml:"queues"`
	Flags  []FlagConfig  `yaml:"flags"`
	Memory []MemoryInit  `yaml:"memory"`
	Events []EventInit   `yaml:"events"`

	dir string
}

// UnitConfig describes one group member. Exactly one of Script, ScriptFile,
// ELF and Program provides its code.
type UnitConfig struct {
	Name       string         `yaml:"name"`
	Priority   int32          `yaml:"priority"`
	Script     string         `yaml:"script"`
	ScriptFile string         `yaml:"script_file"`
	ELF        string         `yaml:"elf"`
	Program    []uint32       `yaml:"program"`
	Entry      uint32         `yaml:"entry"`
	SNRConfig  uint64         `yaml:"snr_config"`
	Ports      []PortBinding  `yaml:"ports"`
	SPUQueues  []QueueBinding `yaml:"spu_queues"`
	InMbox     []uint32       `yaml:"in_mbox"`
	SNR1       []uint32       `yaml:"snr1"`
	SNR2       []uint32       `yaml:"snr2"`
}

// PortBinding connects event port Port to a named queue.
type PortBinding struct {
	Port  int    `yaml:"port"`
	Queue string `yaml:"queue"`
}

// QueueBinding makes a named queue receivable under SPU queue number Num.
type QueueBinding struct {
	Num   uint32 `yaml:"num"`
	Queue string `yaml:"queue"`
}

// QueueConfig creates an event queue.
type QueueConfig struct {
	Name     string `yaml:"name"`
	Size     int    `yaml:"size"`
	Priority bool   `yaml:"priority"`
}

// FlagConfig creates an event flag.
type FlagConfig struct {
	Name    string `yaml:"name"`
	Initial uint64 `yaml:"initial"`
}

// MemoryInit preloads big-endian words into main memory.
type MemoryInit struct {
	Addr  uint32   `yaml:"addr"`
	Words []uint32 `yaml:"words"`
}

// EventInit is pushed to a queue before the group starts.
type EventInit struct {
	Queue  string    `yaml:"queue"`
	Source uint64    `yaml:"source"`
	Data   [3]uint64 `yaml:"data"`
}

// LoadScenario reads a scenario file. Relative paths inside it resolve
// against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)

	return s, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks references between scenario entries.
func (s *Scenario) Validate() error {
	if len(s.Units) == 0 {
		return fmt.Errorf("scenario has no units")
	}

	queues := map[string]bool{}
	for _, q := range s.Queues {
		if q.Name == "" {
			return fmt.Errorf("queue without name")
		}
		if queues[q.Name] {
			return fmt.Errorf("duplicate queue %q", q.Name)
		}
		queues[q.Name] = true
	}

	for i, u := range s.Units {
		sources := 0
		for _, set := range []bool{u.Script != "", u.ScriptFile != "", u.ELF != "", len(u.Program) > 0} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			return fmt.Errorf("unit %d (%s): exactly one of script, script_file, elf, program is required", i, u.Name)
		}

		for _, p := range u.Ports {
			if !queues[p.Queue] {
				return fmt.Errorf("unit %d (%s): port %d: unknown queue %q", i, u.Name, p.Port, p.Queue)
			}
		}
		for _, q := range u.SPUQueues {
			if !queues[q.Queue] {
				return fmt.Errorf("unit %d (%s): spu queue %d: unknown queue %q", i, u.Name, q.Num, q.Queue)
			}
		}
	}

	for _, e := range s.Events {
		if !queues[e.Queue] {
			return fmt.Errorf("event: unknown queue %q", e.Queue)
		}
	}

	return nil
}

func (s *Scenario) path(p string) string {
	if filepath.IsAbs(p) || s.dir == "" {
		return p
	}
	return filepath.Join(s.dir, p)
}

// programBytes encodes Program as big-endian instruction words.
func (u *UnitConfig) programBytes() []byte {
	out := make([]byte, 4*len(u.Program))
	for i, w := range u.Program {
		binary.BigEndian.PutUint32(out[4*i:], w)
	}
	return out
}
