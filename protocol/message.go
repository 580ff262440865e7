package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

type Kind string

const (
	KindDataUpdate           Kind = "data_update"
	KindHeartbeat            Kind = "heartbeat"
	KindPumpSelectionChanged Kind = "pump_selection_changed"
	KindError                Kind = "error"

	KindRequestData          Kind = "request_data"
	KindRequestPumpSelection Kind = "request_pump_selection"
	KindSetPumpState         Kind = "set_pump_state"
)

func (k Kind) String() string { return string(k) }

// Inbound reports whether the console expects to receive this kind.
func (k Kind) Inbound() bool {
	switch k {
	case KindDataUpdate, KindHeartbeat, KindPumpSelectionChanged, KindError:
		return true
	}
	return false
}

// Envelope is the single frame shape on every transport.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, errors.Annotatef(ErrMalformed, "envelope: %v", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.Annotate(ErrMalformed, "envelope: event is empty")
	}
	return env, nil
}

// Encode wraps payload into an envelope. A nil payload is sent as empty object.
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	env := Envelope{Event: kind, Data: json.RawMessage("{}")}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Annotatef(err, "encode kind=%s", kind)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeData unmarshals envelope payload into v. Absent payload is malformed.
func (env Envelope) DecodeData(v interface{}) error {
	if len(env.Data) == 0 {
		return errors.Annotatef(ErrMalformed, "kind=%s payload is empty", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Annotatef(ErrMalformed, "kind=%s payload: %v", env.Event, err)
	}
	return nil
}

type Heartbeat struct {
	Timestamp json.RawMessage `json:"timestamp"`
}

// Time accepts RFC3339 (zone is optional, controller omits it) or unix seconds.
func (h Heartbeat) Time() (time.Time, error) {
	return ParseTimestamp(h.Timestamp)
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// set_pump_state values accepted by controller.
const (
	PumpStatePumping = "pumping"
	PumpStateStandby = "standby"
)

type SetPumpState struct {
	State string `json:"state"`
}

// PumpSelection is both inbound and outbound. Inbound selected_pump is kept raw
// so invalid values can be reported instead of silently zeroed.
type PumpSelection struct {
	SelectedPump json.RawMessage `json:"selected_pump"`
	Timestamp    string          `json:"timestamp,omitempty"`
}

func NewPumpSelection(pump int, at time.Time) PumpSelection {
	return PumpSelection{
		SelectedPump: json.RawMessage(strconv.Itoa(pump)),
		Timestamp:    at.UTC().Format(time.RFC3339Nano),
	}
}

// Pump returns selected_pump as integer. Range is checked by the caller.
func (p PumpSelection) Pump() (int, error) {
	raw := strings.TrimSpace(string(p.SelectedPump))
	if raw == "" || raw == "null" {
		return 0, errors.Annotate(ErrMalformed, "selected_pump is missing")
	}
	var v interface{}
	if err := json.Unmarshal(p.SelectedPump, &v); err != nil {
		return 0, errors.Annotatef(ErrMalformed, "selected_pump=%s: %v", raw, err)
	}
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, errors.Annotatef(ErrMalformed, "selected_pump=%s not integer", raw)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, errors.Annotatef(ErrMalformed, "selected_pump=%s not integer", raw)
		}
		return n, nil
	}
	return 0, errors.Annotatef(ErrMalformed, "selected_pump=%s unexpected type", raw)
}

// DataUpdate keeps each domain raw, absent domains are absent keys.
type DataUpdate map[string]json.RawMessage

// Domain payload keys as sent by the controller.
const (
	DataPump   = "pump"
	DataPump2  = "pump2"
	DataSolar  = "solar"
	DataTank   = "tank"
	DataSkid   = "skid"
	DataSystem = "system"
	DataFaults = "faults"
)

// Fields decodes one domain object into field name -> JSON scalar.
func (u DataUpdate) Fields(key string) (map[string]interface{}, bool, error) {
	raw, ok := u[key]
	if !ok {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, false, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, true, errors.Annotatef(ErrMalformed, "data_update.%s: %v", key, err)
	}
	return fields, true, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	var v interface{}
	if len(raw) == 0 {
		return time.Time{}, errors.Annotate(ErrMalformed, "timestamp is missing")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, errors.Annotatef(ErrMalformed, "timestamp: %v", err)
	}
	switch x := v.(type) {
	case float64:
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, x, time.Local); err == nil {
				return t, nil
			}
		}
		return time.Time{}, errors.Annotatef(ErrMalformed, "timestamp=%q unknown format", x)
	}
	return time.Time{}, errors.Annotatef(ErrMalformed, "timestamp=%s unexpected type", string(raw))
}

func (env Envelope) String() string {
	return fmt.Sprintf("%s%s", env.Event, string(env.Data))
}
