package engine

import (
	"sort"

	"github.com/juju/errors"
	"github.com/napd/console/internal/fault"
	"github.com/napd/console/internal/link"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/telemetry"
	"github.com/napd/console/protocol"
)

func (e *Engine) route(b []byte) {
	if e.Link.State() == link.StateTimedOut {
		e.Log.Debugf("engine: timed out, discard message len=%d", len(b))
		return
	}
	env, err := protocol.Decode(b)
	if err != nil {
		e.protocolError(err)
		return
	}
	if !env.Event.Inbound() {
		e.Stat.inbound("unknown")
		e.Log.Debugf("engine: unknown message %s", env.String())
		return
	}
	e.Stat.inbound(env.Event)

	switch env.Event {
	case protocol.KindDataUpdate:
		e.routeDataUpdate(env)

	case protocol.KindHeartbeat:
		var hb protocol.Heartbeat
		if err := env.DecodeData(&hb); err != nil {
			e.protocolError(err)
			return
		}
		at, err := hb.Time()
		if err != nil {
			e.protocolError(err)
			return
		}
		e.lastSeen.SetTime(at)
		e.Stat.LastHeartbeat.Set(float64(at.UnixNano()) / 1e9)
		e.presenter.OnHeartbeat(at)

	case protocol.KindPumpSelectionChanged:
		var ps protocol.PumpSelection
		if err := env.DecodeData(&ps); err != nil {
			e.protocolError(err)
			return
		}
		n, err := ps.Pump()
		if err != nil {
			e.protocolError(err)
			return
		}
		// invalid value is already logged by selection
		if err := e.Selection.ApplyRemote(selection.Pump(n)); err != nil {
			e.notifyProtocol(err)
		}

	case protocol.KindError:
		var msg protocol.ErrorMessage
		if err := env.DecodeData(&msg); err != nil {
			e.protocolError(err)
			return
		}
		text := msg.Message
		if text == "" {
			text = "controller reported an error"
		}
		e.Log.Infof("engine: controller error: %s", text)
		e.presenter.OnNotification(text, SeverityWarning)
	}
}

func (e *Engine) routeDataUpdate(env protocol.Envelope) {
	var u protocol.DataUpdate
	if err := env.DecodeData(&u); err != nil {
		e.protocolError(err)
		return
	}
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == protocol.DataFaults {
			continue
		}
		domain, ok := telemetry.DomainForKey(key)
		if !ok {
			e.Log.Debugf("engine: data_update unknown domain=%s", key)
			continue
		}
		raw, present, err := u.Fields(key)
		if err != nil {
			e.protocolError(err)
			continue
		}
		if !present {
			continue
		}
		fields, errs := telemetry.ParseFields(raw)
		for _, err := range errs {
			e.protocolError(errors.Annotatef(err, "data_update.%s", key))
		}
		if changed := e.Telemetry.Merge(domain, fields); len(changed) != 0 {
			e.presenter.OnTelemetryChanged(domain, e.Telemetry.Select(domain, changed))
		}
	}

	// absent faults means none active
	raw, _, err := u.Fields(protocol.DataFaults)
	if err != nil {
		e.protocolError(err)
		return
	}
	flags, unknown := fault.ParseFlags(raw)
	if len(unknown) != 0 {
		e.Log.Debugf("engine: unknown fault flags=%v", unknown)
	}
	if report, changed := e.Faults.Update(flags); changed {
		e.presenter.OnFaultsChanged(report.Messages, report.Status())
	}
}

func (e *Engine) protocolError(err error) {
	e.Log.Errorf("engine: protocol: %v", err)
	e.notifyProtocol(err)
}

// notifyProtocol counts and surfaces error without logging.
func (e *Engine) notifyProtocol(err error) {
	e.Stat.ProtocolErrors.Inc()
	e.presenter.OnNotification("Invalid message from controller: "+err.Error(), SeverityInfo)
}

// send drops message unless connected, nothing is queued.
func (e *Engine) send(kind protocol.Kind, payload interface{}) error {
	if e.Link.State() != link.StateConnected {
		e.Stat.dropped(kind)
		return errors.Annotatef(protocol.ErrNotConnected, "send kind=%s state=%s", kind, e.Link.State())
	}
	b, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	if err := e.tr.Send(b); err != nil {
		e.Stat.dropped(kind)
		return errors.Annotatef(err, "send kind=%s", kind)
	}
	e.Stat.outbound(kind)
	e.Log.Debugf("engine: sent %s", kind)
	return nil
}

func (e *Engine) requestState() error {
	err1 := e.send(protocol.KindRequestData, nil)
	err2 := e.send(protocol.KindRequestPumpSelection, nil)
	if err1 != nil {
		return err1
	}
	return err2
}
