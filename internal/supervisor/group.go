package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/pasys/internal/process"
)

// Group owns one supervisor per configured unit, in configuration order.
type Group struct {
	order []string
	sups  map[string]*Supervisor
}

func NewGroup(units []Unit, opts ...Option) (*Group, error) {
	g := &Group{sups: make(map[string]*Supervisor, len(units))}
	for _, u := range units {
		if _, dup := g.sups[u.Name()]; dup {
			return nil, fmt.Errorf("duplicate unit %q", u.Name())
		}
		s, err := New(u, opts...)
		if err != nil {
			return nil, err
		}
		g.order = append(g.order, u.Name())
		g.sups[u.Name()] = s
	}
	return g, nil
}

func (g *Group) Get(name string) (*Supervisor, error) {
	if s, ok := g.sups[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownUnit, name)
}

func (g *Group) Names() []string { return append([]string(nil), g.order...) }

func (g *Group) StatusAll() []process.Status {
	out := make([]process.Status, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, g.sups[n].Status())
	}
	return out
}

// StartAutostart starts every autostart unit, continuing past failures.
func (g *Group) StartAutostart(ctx context.Context) error {
	var errs []error
	for _, n := range g.order {
		s := g.sups[n]
		if !s.unit.Autostart {
			continue
		}
		if _, err := s.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops units in reverse order.
func (g *Group) StopAll(ctx context.Context) error {
	var errs []error
	for i := len(g.order) - 1; i >= 0; i-- {
		if err := g.sups[g.order[i]].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PIDs maps running unit names to their PIDs.
func (g *Group) PIDs() map[string]int {
	out := make(map[string]int)
	for _, n := range g.order {
		if pid := g.sups[n].PID(); pid > 0 {
			out[n] = pid
		}
	}
	return out
}

// Status reports one unit.
func (g *Group) Status(name string) (process.Status, error) {
	s, err := g.Get(name)
	if err != nil {
		return process.Status{}, err
	}
	return s.Status(), nil
}

// Do applies v to the named unit.
func (g *Group) Do(ctx context.Context, name string, v Verb) error {
	s, err := g.Get(name)
	if err != nil {
		return err
	}
	return s.Do(ctx, v)
}
