// Package presenter has non-interactive engine presenters.
package presenter

import (
	"time"

	"github.com/napd/console/internal/engine"
	"github.com/napd/console/internal/link"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/telemetry"
	"github.com/napd/console/log2"
)

// Log writes every notification as a log line. Used by headless `run`.
type Log struct {
	log *log2.Log
}

func NewLog(log *log2.Log) *Log { return &Log{log: log} }

func (p *Log) OnConnectionStateChanged(s link.State) {
	p.log.Infof("connection state=%s", s)
}

func (p *Log) OnTelemetryChanged(d telemetry.Domain, fields telemetry.Fields) {
	p.log.Debugf("telemetry %s %s", d, fields.String())
}

func (p *Log) OnFaultsChanged(active []string, instructions string) {
	if len(active) == 0 {
		p.log.Infof("faults: %s", instructions)
		return
	}
	for _, msg := range active {
		p.log.Infof("fault: %s", msg)
	}
	p.log.Infof("faults: %s", instructions)
}

func (p *Log) OnSelectionChanged(pump selection.Pump) {
	p.log.Infof("selected %s", pump)
}

func (p *Log) OnNotification(msg string, s engine.Severity) {
	switch s {
	case engine.SeverityInfo:
		p.log.Infof("notice: %s", msg)
	default:
		p.log.Errorf("%s: %s", s, msg)
	}
}

func (p *Log) OnHeartbeat(at time.Time) {
	p.log.Debugf("heartbeat controller_time=%s", at.Format(time.RFC3339))
}

// Multi fans out to every presenter in order.
type Multi []engine.Presenter

func (m Multi) OnConnectionStateChanged(s link.State) {
	for _, p := range m {
		p.OnConnectionStateChanged(s)
	}
}

func (m Multi) OnTelemetryChanged(d telemetry.Domain, fields telemetry.Fields) {
	for _, p := range m {
		p.OnTelemetryChanged(d, fields)
	}
}

func (m Multi) OnFaultsChanged(active []string, instructions string) {
	for _, p := range m {
		p.OnFaultsChanged(active, instructions)
	}
}

func (m Multi) OnSelectionChanged(pump selection.Pump) {
	for _, p := range m {
		p.OnSelectionChanged(pump)
	}
}

func (m Multi) OnNotification(msg string, s engine.Severity) {
	for _, p := range m {
		p.OnNotification(msg, s)
	}
}

func (m Multi) OnHeartbeat(at time.Time) {
	for _, p := range m {
		p.OnHeartbeat(at)
	}
}
