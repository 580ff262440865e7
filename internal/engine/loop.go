package engine

import (
	"time"

	"github.com/napd/console/internal/link"
)

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) link.Timer { return time.AfterFunc(d, f) }

// loopScheduler delivers timer fires as events, so link.Manager always runs
// on the loop goroutine.
type loopScheduler struct {
	inner link.Scheduler
	e     *Engine
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) link.Timer {
	return s.inner.AfterFunc(d, func() {
		s.e.post(Event{Kind: EventTimer, fire: f})
	})
}

// post blocks until loop accepts event or engine stops.
func (e *Engine) post(ev Event) {
	select {
	case e.events <- ev:
	case <-e.Alive.StopChan():
		e.Log.Debugf("engine stopped, dropped %s", ev.String())
	}
}

// call runs f on the loop goroutine and returns its error.
func (e *Engine) call(f func() error) error {
	ev := Event{Kind: EventIntent, call: f, result: make(chan error, 1)}
	select {
	case e.events <- ev:
	case <-e.Alive.StopChan():
		return ErrStopped
	}
	select {
	case err := <-ev.result:
		return err
	case <-e.Alive.StopChan():
		return ErrStopped
	}
}

func (e *Engine) handle(ev Event) {
	switch ev.Kind {
	case EventConnected:
		e.Link.Connected()
	case EventDisconnected:
		e.Link.Disconnected(ev.Err)
	case EventConnectError:
		e.Link.ConnectFailed(ev.Err)
	case EventMessage:
		e.route(ev.Payload)
	case EventTimer:
		ev.fire()
	case EventIntent:
		ev.result <- ev.call()
	default:
		e.Log.Errorf("code error engine unknown event=%s", ev.String())
	}
}

// transport.Handler, called from transport goroutines

func (e *Engine) OnConnect()               { e.post(Event{Kind: EventConnected}) }
func (e *Engine) OnDisconnect(err error)   { e.post(Event{Kind: EventDisconnected, Err: err}) }
func (e *Engine) OnConnectError(err error) { e.post(Event{Kind: EventConnectError, Err: err}) }
func (e *Engine) OnMessage(b []byte)       { e.post(Event{Kind: EventMessage, Payload: b}) }
