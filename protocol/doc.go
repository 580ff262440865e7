// Package protocol defines the console wire protocol: message kinds, the JSON
// envelope every frame is wrapped in, payload types and the error taxonomy shared
// by the engine and transports.
//
// One frame carries one envelope:
//
//	{"event": "data_update", "data": {"pump": {"flow_rate": 12.5}}}
//
// Inbound kinds: data_update, heartbeat, pump_selection_changed, error.
// Outbound kinds: request_data, request_pump_selection, set_pump_state,
// pump_selection_changed.
package protocol
