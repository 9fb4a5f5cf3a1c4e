// Package loader provides ELF image loading for SPU programs.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// LocalStoreSize is the size of the address space an SPU image loads into.
const LocalStoreSize = 0x40000

// DefaultStackTop is the initial stack pointer of an SPU program.
const DefaultStackTop = 0x3fff0

// debug/elf has no name for the SPU machine type.
const emSPU elf.Machine = 23

// Segment represents a loadable segment from an ELF image.
type Segment struct {
	// VirtAddr is the local store address where this segment is loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded SPU image ready for execution.
type Program struct {
	// EntryPoint is the local store address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// InitialSP is the initial stack pointer value.
	InitialSP uint32
}

// LocalStore is the destination of LoadInto.
type LocalStore interface {
	WriteLS(lsa uint32, p []byte)
}

// Load parses an SPU ELF image from path.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return parse(f)
}

// LoadReader parses an SPU ELF image from r.
func LoadReader(r io.ReaderAt) (*Program, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF image: %w", err)
	}

	return parse(f)
}

func parse(f *elf.File) (*Program, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}
	if f.Data != elf.ELFDATA2MSB {
		return nil, fmt.Errorf("not a big-endian ELF file")
	}
	if f.Machine != emSPU {
		return nil, fmt.Errorf("not an SPU ELF file (machine type: %v)", f.Machine)
	}
	if f.Entry >= LocalStoreSize {
		return nil, fmt.Errorf("entry point 0x%x outside local store", f.Entry)
	}

	prog := &Program{
		EntryPoint: uint32(f.Entry),
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		if phdr.Vaddr+phdr.Memsz > LocalStoreSize {
			return nil, fmt.Errorf("segment at 0x%x (0x%x bytes) exceeds local store",
				phdr.Vaddr, phdr.Memsz)
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
		})
	}

	return prog, nil
}

// LoadInto copies every segment into ls and zero-fills the BSS tail.
func (p *Program) LoadInto(ls LocalStore) {
	for _, seg := range p.Segments {
		ls.WriteLS(seg.VirtAddr, seg.Data)

		if seg.MemSize > uint32(len(seg.Data)) {
			ls.WriteLS(seg.VirtAddr+uint32(len(seg.Data)), make([]byte, seg.MemSize-uint32(len(seg.Data))))
		}
	}
}
