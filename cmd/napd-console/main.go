package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/napd/console/cmd/napd-console/run"
	"github.com/napd/console/cmd/napd-console/shell"
	"github.com/napd/console/cmd/napd-console/subcmd"
	"github.com/napd/console/cmd/napd-console/tui"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/internal/state"
	"github.com/napd/console/log2"
)

var log = log2.NewStderr(log2.LDebug)

var BuildVersion string = "unknown" // set by ldflags -X

var modules = []subcmd.Mod{
	run.Mod,
	tui.Mod,
	shell.Mod,
}

func main() {
	flagset := flag.NewFlagSet("napd-console", flag.ContinueOnError)
	configPath := flagset.String("config", "napd-console.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: napd-console [-config=napd-console.hcl] [command]\n\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-6s %s\n", m.Name, m.Usage)
		}
		flagset.PrintDefaults()
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	cmdName := flagset.Arg(0)
	if cmdName == "" {
		cmdName = run.Mod.Name
		if isatty.IsTerminal(os.Stdout.Fd()) {
			cmdName = tui.Mod.Name
		}
	}
	mod, err := subcmd.Parse(cmdName, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	fs, err := config.NewOsFullReader("")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cfg, err := config.Read(log, fs, *configPath)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if !cfg.Console.LogDebug {
		log.SetLevel(log2.LInfo)
	}

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	err = mod.Main(ctx, cfg)
	if g.Reloading() {
		subcmd.ExitReload(log)
	}
	if err != nil {
		log.Fatalf("%s: %s", mod.Name, errors.ErrorStack(err))
	}
}
