// Package tui is interactive terminal dashboard.
package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/napd/console/cmd/napd-console/subcmd"
	"github.com/napd/console/internal/config"
	tuiview "github.com/napd/console/internal/presenter/tui"
	"github.com/napd/console/internal/state"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
)

var Mod = subcmd.Mod{Name: "tui", Usage: "terminal dashboard (default on tty)", Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)

	// log lines would break full screen output
	var logOut io.Writer = io.Discard
	if cfg.UI.LogFile != "" {
		f := &lumberjack.Logger{
			Filename:   cfg.UI.LogFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
		}
		defer f.Close()
		logOut = f
	}
	g.Log.SetOutput(logOut)

	// presenter queues until program.Run starts reading
	var program *tea.Program
	presenter := tuiview.NewPresenter(func(msg tea.Msg) { program.Send(msg) })
	defer presenter.Close()
	ctx = g.MustInit(ctx, cfg, presenter)
	model := tuiview.NewModel(g.Engine, cfg.Console.ID, cfg.UI.NotificationLimit)
	program = tea.NewProgram(model, tea.WithAltScreen())

	runErr := make(chan error, 1)
	go func() {
		err := g.Run(ctx)
		program.Quit()
		runErr <- err
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	_, err := program.Run()
	g.Stop()
	if rerr := <-runErr; err == nil {
		err = rerr
	}
	return errors.Annotate(err, "tui")
}
