package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		expect    Kind
		expectErr string
	}{
		{"heartbeat", `{"event":"heartbeat","data":{"timestamp":"2024-05-01T10:00:00"}}`, KindHeartbeat, ""},
		{"no-data", `{"event":"request_data"}`, KindRequestData, ""},
		{"not-json", `event=heartbeat`, "", "malformed message"},
		{"empty-event", `{"data":{}}`, "", "envelope: event is empty: malformed message"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			env, err := Decode([]byte(c.input))
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				assert.True(t, IsMalformed(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, env.Event)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	b, err := Encode(KindRequestData, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"request_data","data":{}}`, string(b))

	b, err = Encode(KindSetPumpState, SetPumpState{State: "pumping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"set_pump_state","data":{"state":"pumping"}}`, string(b))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b, err = Encode(KindPumpSelectionChanged, NewPumpSelection(2, at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pump_selection_changed","data":{"selected_pump":2,"timestamp":"2024-05-01T10:00:00Z"}}`, string(b))
}

func TestPumpSelectionPump(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		expect int
		valid  bool
	}{
		{`1`, 1, true},
		{`2`, 2, true},
		{`7`, 7, true}, // range is checked by selection
		{`"2"`, 2, true},
		{`1.5`, 0, false},
		{`null`, 0, false},
		{`"two"`, 0, false},
		{`[1]`, 0, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.raw, func(t *testing.T) {
			p := PumpSelection{SelectedPump: json.RawMessage(c.raw)}
			n, err := p.Pump()
			if !c.valid {
				require.Error(t, err)
				assert.Equal(t, ErrMalformed, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, n)
		})
	}
}

func TestDataUpdateFields(t *testing.T) {
	t.Parallel()

	var u DataUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"pump":{"flow_rate":12.5,"pump_state":"pumping"},"tank":null,"skid":5}`), &u))

	fields, ok, err := u.Fields(DataPump)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]interface{}{"flow_rate": 12.5, "pump_state": "pumping"}, fields)

	_, ok, err = u.Fields(DataTank)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = u.Fields(DataSolar)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = u.Fields(DataSkid)
	assert.True(t, ok)
	assert.True(t, IsMalformed(err))
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimestamp(json.RawMessage(`"2024-05-01T10:00:00.250000+00:00"`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 250000000, time.UTC).Unix(), ts.Unix())

	ts, err = ParseTimestamp(json.RawMessage(`1714557600`))
	require.NoError(t, err)
	assert.Equal(t, int64(1714557600), ts.Unix())

	_, err = ParseTimestamp(json.RawMessage(`"yesterday"`))
	assert.True(t, IsMalformed(err))
	_, err = ParseTimestamp(nil)
	assert.True(t, IsMalformed(err))
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	err := errors.Annotate(ErrNotConnected, "send kind=request_data")
	assert.True(t, IsNotConnected(err))
	assert.True(t, IsInvalidCommand(err))
	assert.False(t, IsMalformed(err))
	assert.True(t, IsInvalidCommand(errors.NotValidf("pump=3")))
	assert.True(t, IsInvalidCommand(errors.Annotate(ErrInvalidCommand, "state=boost")))
}
