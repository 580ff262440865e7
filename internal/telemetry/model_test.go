package telemetry

import (
	"testing"

	"github.com/napd/console/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOmissionKeepsValue(t *testing.T) {
	t.Parallel()

	m := NewModel()
	changed := m.Merge(DomainPump1, Fields{"flow_rate": Number(12.5), "pump_state": String("pumping")})
	assert.Equal(t, []string{"flow_rate", "pump_state"}, changed)

	changed = m.Merge(DomainPump1, Fields{"flow_rate": Number(13)})
	assert.Equal(t, []string{"flow_rate"}, changed)

	v, ok := m.Get(DomainPump1, "pump_state")
	require.True(t, ok)
	assert.Equal(t, String("pumping"), v)
	v, _ = m.Get(DomainPump1, "flow_rate")
	assert.Equal(t, 13.0, v.Num)
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	partial := Fields{"battery_voltage": Number(24.6), "battery_percentage": Number(81)}
	once := NewModel()
	once.Merge(DomainSolar, partial)

	twice := NewModel()
	twice.Merge(DomainSolar, partial)
	assert.Empty(t, twice.Merge(DomainSolar, partial))
	assert.Equal(t, once.Snapshot(DomainSolar), twice.Snapshot(DomainSolar))
}

func TestMergeSequences(t *testing.T) {
	t.Parallel()

	type step struct {
		partial Fields
		changed []string
	}
	cases := []struct {
		name   string
		steps  []step
		expect Fields
	}{
		{"empty-partial", []step{{Fields{}, nil}}, nil},
		{"type-change", []step{
			{Fields{"status": String("running")}, []string{"status"}},
			{Fields{"status": Number(1)}, []string{"status"}},
		}, Fields{"status": Number(1)}},
		{"interleaved", []step{
			{Fields{"tank_level_mm": Number(1500)}, []string{"tank_level_mm"}},
			{Fields{"tank_level_percent": Number(60)}, []string{"tank_level_percent"}},
			{Fields{"tank_level_mm": Number(1500), "tank_level_percent": Number(61)}, []string{"tank_level_percent"}},
		}, Fields{"tank_level_mm": Number(1500), "tank_level_percent": Number(61)}},
		{"zero-value-ignored", []step{
			{Fields{"skid_flow": Number(3)}, []string{"skid_flow"}},
			{Fields{"skid_flow": Value{}}, nil},
		}, Fields{"skid_flow": Number(3)}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			m := NewModel()
			for i, s := range c.steps {
				assert.Equal(t, s.changed, m.Merge(DomainTank, s.partial), "step=%d", i)
			}
			assert.Equal(t, c.expect, m.Snapshot(DomainTank))
		})
	}
}

func TestDomainsIndependent(t *testing.T) {
	t.Parallel()

	m := NewModel()
	m.Merge(DomainPump1, Fields{"flow_rate": Number(1)})
	m.Merge(DomainPump2, Fields{"flow_rate": Number(2)})
	v1, _ := m.Get(DomainPump1, "flow_rate")
	v2, _ := m.Get(DomainPump2, "flow_rate")
	assert.Equal(t, 1.0, v1.Num)
	assert.Equal(t, 2.0, v2.Num)

	snap := m.Snapshot(DomainPump1)
	snap["flow_rate"] = Number(99)
	v1, _ = m.Get(DomainPump1, "flow_rate")
	assert.Equal(t, 1.0, v1.Num, "snapshot must be a copy")

	assert.Equal(t, []Domain{DomainPump1, DomainPump2}, m.Domains())
	m.Reset()
	assert.Nil(t, m.Snapshot(DomainPump2))
	assert.Empty(t, m.Domains())
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	fields, errs := ParseFields(map[string]interface{}{
		"target_rate": 40.0,
		"pump_state":  "standby",
		"running":     true,
		"flow_rate":   nil,
		"nested":      map[string]interface{}{"x": 1.0},
	})
	require.Len(t, errs, 1)
	assert.True(t, protocol.IsMalformed(errs[0]))
	assert.Contains(t, errs[0].Error(), "field=nested")
	assert.Equal(t, Fields{
		"target_rate": Number(40),
		"pump_state":  String("standby"),
		"running":     Number(1),
	}, fields)
}

func TestDomainForKey(t *testing.T) {
	t.Parallel()

	d, ok := DomainForKey("pump")
	assert.True(t, ok)
	assert.Equal(t, DomainPump1, d)
	assert.Equal(t, "pump", DomainPump1.WireKey())
	assert.Equal(t, "solar", DomainSolar.WireKey())
	_, ok = DomainForKey("faults")
	assert.False(t, ok)
	assert.Equal(t, "12.5", Number(12.5).String())
	assert.Equal(t, "-", Value{}.String())
	assert.Equal(t, "{a=1 b=x}", Fields{"b": String("x"), "a": Number(1)}.String())
}
