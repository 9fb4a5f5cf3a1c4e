package spu

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group is an SPU thread group. Members reach each other's local store and
// signal notification registers through the thread group MMIO window.
type Group struct {
	mu      sync.Mutex
	name    string
	members []*Unit

	exited     bool
	exitStatus uint32
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

func (g *Group) add(u *Unit) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.members = append(g.members, u)
	return len(g.members) - 1
}

// Member returns member num, or nil.
func (g *Group) Member(num int) *Unit {
	g.mu.Lock()
	defer g.mu.Unlock()

	if num < 0 || num >= len(g.members) {
		return nil
	}
	return g.members[num]
}

// Members returns the members in creation order.
func (g *Group) Members() []*Unit {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]*Unit(nil), g.members...)
}

// Exit marks the group exited with status and stops every member.
func (g *Group) Exit(status uint32) {
	g.mu.Lock()
	g.exited = true
	g.exitStatus = status
	members := append([]*Unit(nil), g.members...)
	g.mu.Unlock()

	for _, m := range members {
		m.Stop()
	}
}

// ExitStatus returns the group exit status and whether the group exited.
func (g *Group) ExitStatus() (uint32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.exitStatus, g.exited
}

// Run runs every member on its own goroutine until all of them stop. The
// first member error cancels the others.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, m := range g.Members() {
		eg.Go(func() error {
			return m.Run(ctx)
		})
	}

	return eg.Wait()
}

// Close closes every member.
func (g *Group) Close() {
	for _, m := range g.Members() {
		m.Close()
	}
}
