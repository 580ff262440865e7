package state

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/napd/console/helpers"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/internal/engine"
	"github.com/napd/console/internal/transport"
	"github.com/napd/console/log2"
	"github.com/temoto/alive/v2"
)

const ContextKey = "run/state-global"

// ExitReload is process exit code asking supervisor for a fresh start.
const ExitReload = 75

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *config.Config
	Engine       *engine.Engine
	Log          *log2.Log
	Transport    transport.Transporter

	metrics   *http.Server
	reloading uint32
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Log:          log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init builds transport and engine from config. No network activity except
// metrics listener. If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config, p engine.Presenter) (context.Context, error) {
	g.Config = cfg
	g.Log.Infof("build version=%s console=%s transport=%s", g.BuildVersion, cfg.Console.ID, cfg.Transport.Kind)

	tr, err := transport.New(cfg.Transport.Kind)
	if err != nil {
		return ctx, errors.Annotate(err, "transport")
	}
	g.Transport = tr
	g.Engine = engine.New(g.Log, tr, p, g, nil)
	if err = tr.Init(ctx, g.Log.Clone(log2.LInfo), cfg.Transport, cfg.Console.ID, g.Engine); err != nil {
		return ctx, errors.Annotate(err, "transport init")
	}
	ctx = engine.NewContext(ctx, g.Engine)

	if cfg.Metrics.Listen != "" {
		g.metrics = &http.Server{Addr: cfg.Metrics.Listen, Handler: g.Engine.Stat.Handler()}
		go func() {
			if err := g.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				g.Error(err, "metrics listen=%s", cfg.Metrics.Listen)
			}
		}()
	}
	return ctx, nil
}

func (g *Global) MustInit(ctx context.Context, cfg *config.Config, p engine.Presenter) context.Context {
	ctx, err := g.Init(ctx, cfg, p)
	if err != nil {
		g.Fatal(err)
	}
	return ctx
}

// Run blocks in engine loop until Stop, reload or ctx is done.
func (g *Global) Run(ctx context.Context) error {
	if !g.Alive.Add(1) {
		return engine.ErrStopped
	}
	defer g.Alive.Done()

	go helpers.AliveSub(g.Alive, g.Engine.Alive)
	err := g.Engine.Run(ctx)
	if g.metrics != nil {
		_ = g.metrics.Close()
	}
	if err == context.Canceled {
		err = nil
	}
	return err
}

// Reload implements engine.Host. Process exits with ExitReload after Run returns.
func (g *Global) Reload() {
	atomic.StoreUint32(&g.reloading, 1)
	g.Stop()
}

func (g *Global) Reloading() bool { return atomic.LoadUint32(&g.reloading) == 1 }

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
