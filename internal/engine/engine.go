// Package engine is the console session: one loop goroutine owning link
// state, telemetry, selection and faults. Transport callbacks, timers and
// operator intents all become events processed strictly one at a time.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/napd/console/helpers/atomic_clock"
	"github.com/napd/console/internal/fault"
	"github.com/napd/console/internal/link"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/telemetry"
	"github.com/napd/console/internal/transport"
	"github.com/napd/console/log2"
	"github.com/napd/console/protocol"
	"github.com/temoto/alive/v2"
)

const ContextKey = "run/engine"

const eventBuffer = 64

var ErrStopped = errors.New("engine stopped")

type Engine struct {
	Alive     *alive.Alive
	Log       *log2.Log
	Link      *link.Manager
	Telemetry *telemetry.Model
	Selection *selection.Synchronizer
	Faults    *fault.Aggregator
	Stat      *Stat

	tr        transport.Transporter
	presenter Presenter
	host      Host
	events    chan Event
	lastSeen  atomic_clock.Clock
}

// New wires session components. sched nil means real timers.
// Transport must be initialized with returned Engine as Handler.
func New(log *log2.Log, tr transport.Transporter, p Presenter, host Host, sched link.Scheduler) *Engine {
	if sched == nil {
		sched = realScheduler{}
	}
	e := &Engine{
		Alive:     alive.NewAlive(),
		Log:       log,
		Telemetry: telemetry.NewModel(),
		Faults:    fault.NewAggregator(),
		Stat:      NewStat(),
		tr:        tr,
		presenter: p,
		host:      host,
		events:    make(chan Event, eventBuffer),
	}
	e.Link = link.NewManager(log, dialer{e}, loopScheduler{inner: sched, e: e}, linkListener{e})
	e.Selection = selection.NewSynchronizer(log, broadcaster{e})
	e.Selection.OnChanged(func(p selection.Pump, o selection.Origin) {
		e.presenter.OnSelectionChanged(p)
	})
	return e
}

func NewContext(ctx context.Context, e *Engine) context.Context {
	ctx = context.WithValue(ctx, log2.ContextKey, e.Log)
	return context.WithValue(ctx, ContextKey, e)
}

func GetEngine(ctx context.Context) *Engine {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if e, ok := v.(*Engine); ok {
		return e
	}
	panic(fmt.Sprintf("context['%s'] expected type *Engine actual=%#v", ContextKey, v))
}

// Run starts connecting and processes events until Stop or ctx is done.
// Transport is closed on return.
func (e *Engine) Run(ctx context.Context) error {
	if !e.Alive.Add(1) {
		return ErrStopped
	}
	defer e.Alive.Done()
	defer e.tr.Close()

	if err := e.Link.Start(); err != nil {
		return errors.Annotate(err, "engine run")
	}
	for {
		select {
		case ev := <-e.events:
			e.handle(ev)
		case <-e.Alive.StopChan():
			e.Link.Stop()
			return nil
		case <-ctx.Done():
			e.Link.Stop()
			e.Alive.Stop()
			return ctx.Err()
		}
	}
}

func (e *Engine) Stop() { e.Alive.Stop() }

// LastSeen is time of last controller heartbeat, zero if none yet.
// Safe to call from any goroutine.
func (e *Engine) LastSeen() time.Time {
	return e.lastSeen.Time()
}

// View is a consistent copy of session state for display.
type View struct {
	State     link.State
	Attempts  uint32
	Pump      selection.Pump
	Faults    fault.Report
	Telemetry map[telemetry.Domain]telemetry.Fields
	LastSeen  time.Time
}

func (e *Engine) View() (View, error) {
	var v View
	err := e.call(func() error {
		v.State = e.Link.State()
		v.Attempts = e.Link.Attempts()
		v.Pump = e.Selection.Current()
		v.Faults = e.Faults.Current()
		v.Telemetry = make(map[telemetry.Domain]telemetry.Fields, len(telemetry.Domains))
		for _, d := range e.Telemetry.Domains() {
			v.Telemetry[d] = e.Telemetry.Snapshot(d)
		}
		v.LastSeen = e.LastSeen()
		return nil
	})
	return v, err
}

// link.Dialer
type dialer struct{ e *Engine }

func (d dialer) Connect() {
	d.e.Stat.ConnectAttempts.Inc()
	d.e.tr.Connect()
}
func (d dialer) Disconnect() { d.e.tr.Disconnect() }

// link.Listener
type linkListener struct{ e *Engine }

func (l linkListener) OnStateChanged(s link.State) {
	l.e.Stat.setState(s)
	l.e.presenter.OnConnectionStateChanged(s)
}

func (l linkListener) OnTimedOut(err error) {
	l.e.presenter.OnNotification(
		fmt.Sprintf("Connection to controller timed out after %v. The console will reload.", link.SessionTimeout),
		SeverityFatal)
}

func (l linkListener) OnReload() {
	l.e.Log.Infof("engine: session over, reload")
	if l.e.host != nil {
		l.e.host.Reload()
	}
}

func (l linkListener) OnRequestState() {
	if err := l.e.requestState(); err != nil {
		l.e.Log.Errorf("engine: request state: %v", err)
	}
}

// selection.Broadcaster
type broadcaster struct{ e *Engine }

func (b broadcaster) Connected() bool { return b.e.Link.State() == link.StateConnected }
func (b broadcaster) SendSelection(p selection.Pump, at time.Time) error {
	return b.e.send(protocol.KindPumpSelectionChanged, protocol.NewPumpSelection(int(p), at))
}
