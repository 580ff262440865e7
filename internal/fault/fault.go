// Package fault turns fault flags reported by telemetry into an ordered list of
// operator messages. Clearing is done on the controller by the selector
// button, this package never clears anything by itself.
package fault

import (
	"strings"
)

type Flag string

const (
	FlagHHPressure  Flag = "hh_pressure"
	FlagLLTankLevel Flag = "ll_tank_level"
)

const (
	MsgHHPressure  = "High High Pressure Tripped the Pumps!"
	MsgLLTankLevel = "Low Low Tank Level Tripped the Pumps! - Fill Tank"
	Instructions   = "Press the selector button to clear the fault"
	NoFaults       = "No Faults"
)

// priority order of messages
var known = []struct {
	flag    Flag
	message string
}{
	{FlagHHPressure, MsgHHPressure},
	{FlagLLTankLevel, MsgLLTankLevel},
}

func Known(f Flag) bool {
	for _, k := range known {
		if k.flag == f {
			return true
		}
	}
	return false
}

// Flags holds active conditions, missing key = false.
type Flags map[Flag]bool

// ParseFlags applies controller truthiness rules to the raw faults object.
// Unknown names are returned separately so the caller may log them.
func ParseFlags(raw map[string]interface{}) (Flags, []string) {
	flags := make(Flags, len(known))
	var unknown []string
	for name, x := range raw {
		f := Flag(name)
		if !Known(f) {
			unknown = append(unknown, name)
			continue
		}
		flags[f] = truthy(x)
	}
	return flags, unknown
}

func truthy(x interface{}) bool {
	switch v := x.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		}
	}
	return false
}

type Report struct {
	Active       bool
	Messages     []string
	Instructions string
}

// Status is the single line summary: instructions while active, "No Faults" otherwise.
func (r Report) Status() string {
	if r.Active {
		return r.Instructions
	}
	return NoFaults
}

func (r Report) Equal(other Report) bool {
	if r.Active != other.Active || r.Instructions != other.Instructions || len(r.Messages) != len(other.Messages) {
		return false
	}
	for i := range r.Messages {
		if r.Messages[i] != other.Messages[i] {
			return false
		}
	}
	return true
}

// Aggregate tests flags in fixed priority order.
func Aggregate(flags Flags) Report {
	r := Report{Messages: []string{}}
	for _, k := range known {
		if flags[k.flag] {
			r.Messages = append(r.Messages, k.message)
		}
	}
	if len(r.Messages) != 0 {
		r.Active = true
		r.Instructions = Instructions
	}
	return r
}

// Aggregator remembers the last report to tell whether it changed.
type Aggregator struct {
	current Report
	flags   Flags
}

func NewAggregator() *Aggregator {
	return &Aggregator{current: Aggregate(nil), flags: Flags{}}
}

func (a *Aggregator) Current() Report { return a.current }

func (a *Aggregator) Flags() Flags {
	out := make(Flags, len(a.flags))
	for k, v := range a.flags {
		out[k] = v
	}
	return out
}

// Update recomputes the report from flags. nil or empty flags mean no faults.
func (a *Aggregator) Update(flags Flags) (Report, bool) {
	r := Aggregate(flags)
	a.flags = make(Flags, len(flags))
	for k, v := range flags {
		a.flags[k] = v
	}
	changed := !r.Equal(a.current)
	a.current = r
	return r, changed
}
