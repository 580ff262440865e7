// Package run is headless console: state changes go to log, metrics over HTTP.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/napd/console/cmd/napd-console/subcmd"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/internal/presenter"
	"github.com/napd/console/internal/state"
)

var Mod = subcmd.Mod{Name: "run", Usage: "headless, log state changes", Main: Main}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	ctx = g.MustInit(ctx, cfg, presenter.NewLog(g.Log))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("console init complete, running")
	return g.Run(ctx)
}
