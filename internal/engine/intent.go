package engine

import (
	"github.com/juju/errors"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/protocol"
)

type IntentKind uint8

const (
	IntentInvalid IntentKind = iota
	IntentTogglePump
	IntentSelectPump
	IntentSetPumpState
	IntentRefresh
)

var intentNames = map[IntentKind]string{
	IntentTogglePump:   "toggle_pump",
	IntentSelectPump:   "select_pump",
	IntentSetPumpState: "set_pump_state",
	IntentRefresh:      "refresh",
}

func (k IntentKind) String() string {
	if s, ok := intentNames[k]; ok {
		return s
	}
	return "invalid"
}

// Intent is an operator action. Pump is for SelectPump, State for SetPumpState.
type Intent struct {
	Kind  IntentKind
	Pump  selection.Pump
	State string
}

// Do executes intent on the loop goroutine. Invalid intents are rejected
// without any state change.
func (e *Engine) Do(in Intent) error {
	err := e.call(func() error { return e.apply(in) })
	return errors.Annotatef(err, "intent=%s", in.Kind)
}

func (e *Engine) TogglePump() error { return e.Do(Intent{Kind: IntentTogglePump}) }
func (e *Engine) SelectPump(p selection.Pump) error {
	return e.Do(Intent{Kind: IntentSelectPump, Pump: p})
}
func (e *Engine) SetPumpState(s string) error {
	return e.Do(Intent{Kind: IntentSetPumpState, State: s})
}
func (e *Engine) RequestRefresh() error { return e.Do(Intent{Kind: IntentRefresh}) }

func (e *Engine) apply(in Intent) error {
	switch in.Kind {
	case IntentTogglePump:
		return e.Selection.Toggle()
	case IntentSelectPump:
		return e.Selection.SetLocal(in.Pump)
	case IntentSetPumpState:
		switch in.State {
		case protocol.PumpStatePumping, protocol.PumpStateStandby:
		default:
			return errors.Annotatef(protocol.ErrInvalidCommand, "pump state=%q", in.State)
		}
		return e.send(protocol.KindSetPumpState, protocol.SetPumpState{State: in.State})
	case IntentRefresh:
		return e.requestState()
	}
	return errors.NotValidf("intent kind=%d", in.Kind)
}
