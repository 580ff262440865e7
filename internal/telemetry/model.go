// Package telemetry keeps the latest known value of every field of every
// telemetry domain. It is a last-write-wins store keyed by (domain, field):
// a field absent from an update keeps its value, nothing is validated here.
package telemetry

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/juju/errors"
	"github.com/napd/console/protocol"
)

type Domain string

const (
	DomainPump1  Domain = "pump1"
	DomainPump2  Domain = "pump2"
	DomainSolar  Domain = "solar"
	DomainTank   Domain = "tank"
	DomainSkid   Domain = "skid"
	DomainSystem Domain = "system"
)

// Domains in display order.
var Domains = []Domain{DomainPump1, DomainPump2, DomainSolar, DomainTank, DomainSkid, DomainSystem}

// wire key -> domain
var wireDomains = map[string]Domain{
	protocol.DataPump:   DomainPump1,
	protocol.DataPump2:  DomainPump2,
	protocol.DataSolar:  DomainSolar,
	protocol.DataTank:   DomainTank,
	protocol.DataSkid:   DomainSkid,
	protocol.DataSystem: DomainSystem,
}

// DomainForKey maps data_update key to domain. Controller sends pump 1 as "pump".
func DomainForKey(key string) (Domain, bool) {
	d, ok := wireDomains[key]
	return d, ok
}

// WireKey is reverse of DomainForKey.
func (d Domain) WireKey() string {
	for k, v := range wireDomains {
		if v == d {
			return k
		}
	}
	return string(d)
}

type ValueKind uint8

const (
	KindNumber ValueKind = iota + 1
	KindString
)

// Value is a numeric or string field value.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }

func (v Value) IsZero() bool { return v.Kind == 0 }

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	}
	return "-"
}

// ValueOf converts one decoded JSON scalar. ok=false means "treat as absent".
func ValueOf(x interface{}) (Value, bool, error) {
	switch v := x.(type) {
	case nil:
		return Value{}, false, nil
	case float64:
		return Number(v), true, nil
	case string:
		return String(v), true, nil
	case bool:
		if v {
			return Number(1), true, nil
		}
		return Number(0), true, nil
	}
	return Value{}, false, errors.Annotatef(protocol.ErrMalformed, "unsupported value type %T", x)
}

type Fields map[string]Value

func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f Fields) String() string {
	s := "{"
	for i, name := range f.Names() {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%s", name, f[name].String())
	}
	return s + "}"
}

type Model struct {
	domains map[Domain]Fields
}

func NewModel() *Model {
	return &Model{domains: make(map[Domain]Fields, len(Domains))}
}

// Merge overwrites each field present in partial and returns sorted names of
// fields whose value actually changed. Fields not in partial are untouched.
func (m *Model) Merge(d Domain, partial Fields) []string {
	if len(partial) == 0 {
		return nil
	}
	stored, ok := m.domains[d]
	if !ok {
		stored = make(Fields, len(partial))
		m.domains[d] = stored
	}
	var changed []string
	for name, v := range partial {
		if v.IsZero() {
			continue
		}
		if old, ok := stored[name]; ok && old == v {
			continue
		}
		stored[name] = v
		changed = append(changed, name)
	}
	sort.Strings(changed)
	return changed
}

func (m *Model) Get(d Domain, field string) (Value, bool) {
	v, ok := m.domains[d][field]
	return v, ok
}

// Snapshot returns a copy of domain fields, nil if nothing is known yet.
func (m *Model) Snapshot(d Domain) Fields {
	stored, ok := m.domains[d]
	if !ok {
		return nil
	}
	out := make(Fields, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out
}

// Select returns copy of named fields only, used to report what changed.
func (m *Model) Select(d Domain, names []string) Fields {
	out := make(Fields, len(names))
	for _, name := range names {
		if v, ok := m.domains[d][name]; ok {
			out[name] = v
		}
	}
	return out
}

// Domains returns domains with any data, in display order.
func (m *Model) Domains() []Domain {
	out := make([]Domain, 0, len(m.domains))
	for _, d := range Domains {
		if _, ok := m.domains[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Reset is the only wholesale replacement.
func (m *Model) Reset() {
	m.domains = make(map[Domain]Fields, len(Domains))
}

// ParseFields converts decoded domain object. Bad fields are skipped and
// reported, good fields are kept.
func ParseFields(raw map[string]interface{}) (Fields, []error) {
	fields := make(Fields, len(raw))
	var errs []error
	for name, x := range raw {
		v, ok, err := ValueOf(x)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "field=%s", name))
			continue
		}
		if ok {
			fields[name] = v
		}
	}
	return fields, errs
}
