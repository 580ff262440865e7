package engine

import (
	"time"

	"github.com/napd/console/internal/link"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/telemetry"
)

//go:generate stringer -type=Severity -trimprefix=Severity -linecomment
type Severity uint8

const (
	SeverityInfo    Severity = iota // info
	SeverityWarning                 // warning
	// fatal is blocking, session is over
	SeverityFatal // fatal
)

// Presenter renders state. Methods are called from engine loop goroutine one
// at a time and must not block; user intents go back through Engine.Do.
type Presenter interface {
	OnConnectionStateChanged(state link.State)
	// fields contains only changed fields with their new values
	OnTelemetryChanged(domain telemetry.Domain, fields telemetry.Fields)
	// instructions is "No Faults" when active is empty
	OnFaultsChanged(active []string, instructions string)
	OnSelectionChanged(pump selection.Pump)
	OnNotification(message string, severity Severity)
	OnHeartbeat(at time.Time)
}

// Host owns the process. Reload is the only way out of timed out session.
type Host interface {
	Reload()
}

type HostFunc func()

func (f HostFunc) Reload() { f() }
