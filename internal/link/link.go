// Package link owns connection lifecycle to the controller: connect, constant
// delay retry, one-shot session deadline with forced reload, and the state
// request after every successful connect.
//
// Manager is driven by a single goroutine. Transport events and timer
// callbacks must be delivered on that goroutine, see Scheduler.
package link

import (
	"time"

	"github.com/juju/errors"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
)

const (
	ReconnectDelay    = 4 * time.Second
	SessionTimeout    = 300 * time.Second
	ReloadGrace       = 2 * time.Second
	RequestStateDelay = 1 * time.Second
)

// Dialer opens and closes transport. Both calls return immediately,
// outcome is reported back via Manager.Connected/Disconnected/ConnectFailed.
type Dialer interface {
	Connect()
	Disconnect()
}

type Listener interface {
	OnStateChanged(State)
	// OnTimedOut is terminal, err wraps protocol.ErrSessionTimeout.
	OnTimedOut(err error)
	// OnReload means host must restart the session.
	OnReload()
	// OnRequestState asks to send request_data and request_pump_selection.
	OnRequestState()
}

type timerKind uint8

const (
	timerReconnect timerKind = iota
	timerSession
	timerReload
	timerRequest
)

var timerNames = [...]string{"reconnect", "session", "reload", "request"}

func (k timerKind) String() string { return timerNames[k] }

type armed struct {
	t Timer
}

type Manager struct {
	Log *log2.Log

	dialer   Dialer
	sched    Scheduler
	listener Listener

	state         State
	started       bool
	sessionArmed  int
	sessionCancel int
	attempts      uint32
	timers        map[timerKind]*armed
}

func NewManager(log *log2.Log, d Dialer, s Scheduler, l Listener) *Manager {
	return &Manager{
		Log:      log,
		dialer:   d,
		sched:    s,
		listener: l,
		state:    StateDisconnected,
		timers:   make(map[timerKind]*armed, len(timerNames)),
	}
}

func (m *Manager) State() State { return m.state }

// Attempts is number of connect attempts since Start.
func (m *Manager) Attempts() uint32 { return m.attempts }

func (m *Manager) Start() error {
	if m.started {
		return errors.Errorf("link: already started state=%s", m.state)
	}
	m.started = true
	m.setState(StateConnecting)
	m.sessionArmed++
	m.arm(timerSession, SessionTimeout, m.sessionFired)
	m.connect()
	return nil
}

// Stop cancels all timers and closes transport. Events after Stop are ignored.
func (m *Manager) Stop() {
	for kind := range m.timers {
		m.cancel(kind)
	}
	if m.state == StateConnected || m.state.Pending() {
		m.dialer.Disconnect()
	}
	if m.state != StateTimedOut {
		m.setState(StateDisconnected)
	}
}

func (m *Manager) Connected() {
	if !m.state.Pending() {
		m.Log.Debugf("link: connected ignored state=%s", m.state)
		return
	}
	if m.cancel(timerSession) {
		m.sessionCancel++
	}
	m.cancel(timerReconnect)
	m.setState(StateConnected)
	m.arm(timerRequest, RequestStateDelay, m.listener.OnRequestState)
}

// Disconnected handles loss of established connection. While connecting,
// it is the same as failed attempt.
func (m *Manager) Disconnected(err error) {
	switch m.state {
	case StateConnected:
		m.Log.Infof("link: connection lost err=%v", err)
		m.cancel(timerRequest)
		m.setState(StateReconnecting)
		m.arm(timerReconnect, ReconnectDelay, m.reconnectFired)
	case StateConnecting, StateReconnecting:
		m.ConnectFailed(err)
	default:
		m.Log.Debugf("link: disconnected ignored state=%s", m.state)
	}
}

func (m *Manager) ConnectFailed(err error) {
	if !m.state.Pending() {
		m.Log.Debugf("link: connect error ignored state=%s err=%v", m.state, err)
		return
	}
	m.Log.Infof("link: connect attempt=%d err=%v", m.attempts, err)
	m.setState(StateReconnecting)
	if m.timers[timerReconnect] == nil {
		m.arm(timerReconnect, ReconnectDelay, m.reconnectFired)
	}
}

func (m *Manager) connect() {
	m.attempts++
	m.Log.Debugf("link: connect attempt=%d", m.attempts)
	m.dialer.Connect()
}

func (m *Manager) reconnectFired() {
	if !m.state.Pending() {
		return
	}
	m.connect()
	m.arm(timerReconnect, ReconnectDelay, m.reconnectFired)
}

func (m *Manager) sessionFired() {
	if !m.state.Pending() {
		return
	}
	m.cancel(timerReconnect)
	m.cancel(timerRequest)
	m.dialer.Disconnect()
	m.setState(StateTimedOut)
	err := errors.Annotatef(protocol.ErrSessionTimeout, "no connection within %v", SessionTimeout)
	m.Log.Error(err)
	m.listener.OnTimedOut(err)
	m.arm(timerReload, ReloadGrace, m.listener.OnReload)
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	m.Log.Debugf("link: state %s -> %s", m.state, s)
	m.state = s
	m.listener.OnStateChanged(s)
}

// arm replaces live timer of the same kind. A fire already in flight
// for replaced or canceled timer is recognized by identity and ignored.
func (m *Manager) arm(kind timerKind, d time.Duration, f func()) {
	m.cancel(kind)
	a := &armed{}
	m.timers[kind] = a
	a.t = m.sched.AfterFunc(d, func() {
		if m.timers[kind] != a {
			m.Log.Debugf("link: stale %s timer", kind)
			return
		}
		delete(m.timers, kind)
		f()
	})
}

func (m *Manager) cancel(kind timerKind) bool {
	a := m.timers[kind]
	if a == nil {
		return false
	}
	delete(m.timers, kind)
	a.t.Stop()
	return true
}
