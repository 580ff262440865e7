// Package selection keeps the active pump and decides which changes are
// announced to other consoles. Only local operator actions are broadcast,
// remote changes are applied silently so consoles never echo each other.
package selection

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/napd/console/log2"
)

type Pump int

const (
	Pump1 Pump = 1
	Pump2 Pump = 2

	DefaultPump = Pump1
)

func (p Pump) Valid() bool    { return p == Pump1 || p == Pump2 }
func (p Pump) String() string { return fmt.Sprintf("pump%d", int(p)) }

func (p Pump) Other() Pump {
	if p == Pump1 {
		return Pump2
	}
	return Pump1
}

type Origin uint8

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	}
	return fmt.Sprintf("origin(%d)", o)
}

// Broadcaster sends selection to other consoles.
type Broadcaster interface {
	Connected() bool
	SendSelection(p Pump, at time.Time) error
}

// Synchronizer is not safe for concurrent use, it is driven by engine loop.
type Synchronizer struct {
	Log *log2.Log

	current   Pump
	bcast     Broadcaster
	now       func() time.Time
	onChanged func(Pump, Origin)
}

func NewSynchronizer(log *log2.Log, b Broadcaster) *Synchronizer {
	return &Synchronizer{
		Log:     log,
		current: DefaultPump,
		bcast:   b,
		now:     time.Now,
	}
}

// OnChanged registers f to be called after every successful mutation.
func (s *Synchronizer) OnChanged(f func(Pump, Origin)) { s.onChanged = f }

// SetClock replaces time source used for outbound timestamps.
func (s *Synchronizer) SetClock(now func() time.Time) { s.now = now }

func (s *Synchronizer) Current() Pump { return s.current }

func (s *Synchronizer) Toggle() error {
	return s.apply(s.current.Other(), OriginLocal)
}

func (s *Synchronizer) SetLocal(p Pump) error {
	if !p.Valid() {
		return errors.NotValidf("pump=%d", int(p))
	}
	return s.apply(p, OriginLocal)
}

// ApplyRemote adopts selection made on another console. Never broadcast.
func (s *Synchronizer) ApplyRemote(p Pump) error {
	if !p.Valid() {
		err := errors.NotValidf("remote pump=%d", int(p))
		s.Log.Errorf("selection: %v", err)
		return err
	}
	return s.apply(p, OriginRemote)
}

// apply is the only place where origin is observed.
// Returned error is from broadcast only; local state is already updated.
func (s *Synchronizer) apply(p Pump, origin Origin) error {
	prev := s.current
	s.current = p
	s.Log.Debugf("selection: %s -> %s origin=%s", prev, p, origin)
	if s.onChanged != nil {
		s.onChanged(p, origin)
	}
	if origin != OriginLocal {
		return nil
	}
	if s.bcast == nil || !s.bcast.Connected() {
		s.Log.Infof("selection: %s not broadcast, link is down", p)
		return nil
	}
	if err := s.bcast.SendSelection(p, s.now()); err != nil {
		return errors.Annotatef(err, "broadcast selection %s", p)
	}
	return nil
}
