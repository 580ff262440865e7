// Package shell is line oriented operator console, also works with piped stdin.
package shell

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/napd/console/cmd/napd-console/subcmd"
	"github.com/napd/console/helpers/cli"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/internal/engine"
	"github.com/napd/console/internal/presenter"
	"github.com/napd/console/internal/selection"
	"github.com/napd/console/internal/state"
	"github.com/napd/console/internal/telemetry"
	"github.com/napd/console/protocol"
)

const modName = "shell"

const usage = `commands:
- toggle       switch selected pump
- select N     select pump 1 or 2
- start        send pump state pumping to controller
- stop         send pump state standby to controller
- refresh      request full state from controller
- show         print session state
- quit         stop and exit (or Ctrl+D)
`

var Mod = subcmd.Mod{Name: modName, Usage: "interactive command line", Main: Main}

// console is the subset of engine used by commands.
type console interface {
	TogglePump() error
	SelectPump(selection.Pump) error
	SetPumpState(string) error
	RequestRefresh() error
	View() (engine.View, error)
}

type command struct {
	name string
	do   func(c console) (string, error)
}

func Main(ctx context.Context, cfg *config.Config) error {
	g := state.GetGlobal(ctx)
	ctx = g.MustInit(ctx, cfg, presenter.NewLog(g.Log))

	go func() {
		if err := g.Run(ctx); err != nil {
			g.Error(err, "engine")
		}
		if g.Reloading() {
			subcmd.ExitReload(g.Log)
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Debugf("shell init complete")
	cli.MainLoop(modName, g.Stop, newExecutor(ctx), newCompleter())
	g.StopWait(5 * time.Second)
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	suggests := make([]prompt.Suggest, 0, len(names))
	for _, name := range names {
		suggests = append(suggests, prompt.Suggest{Text: name, Description: commands[name]})
	}

	return func(d prompt.Document) []prompt.Suggest {
		if strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)

	return func(line string) {
		cmd, err := parseLine(line)
		if err != nil {
			g.Log.Errorf("%v", err)
			return
		}
		switch cmd.name {
		case "":
			return
		case "quit":
			g.StopWait(5 * time.Second)
			os.Exit(0)
		}
		out, err := cmd.do(g.Engine)
		if err != nil {
			g.Log.Errorf("%s: %v", cmd.name, err)
			return
		}
		if out != "" {
			fmt.Print(out)
		}
	}
}

// command name -> completion description
var commands = map[string]string{
	"help":    "show commands",
	"toggle":  "switch selected pump",
	"select":  "select pump 1 or 2",
	"start":   "send pump state pumping",
	"stop":    "send pump state standby",
	"refresh": "request full state",
	"show":    "print session state",
	"quit":    "stop and exit",
}

func parseLine(line string) (command, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return command{}, nil
	}
	name, args := words[0], words[1:]
	if _, ok := commands[name]; !ok {
		return command{}, errors.Errorf("command='%s' unknown, try help", name)
	}
	cmd := command{name: name}
	if name != "select" && len(args) != 0 {
		return cmd, errors.Errorf("command='%s' takes no arguments", name)
	}
	switch name {
	case "help":
		cmd.do = func(console) (string, error) { return usage, nil }
	case "toggle":
		cmd.do = func(c console) (string, error) { return "", c.TogglePump() }
	case "select":
		if len(args) != 1 {
			return cmd, errors.New("usage: select 1|2")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || !selection.Pump(n).Valid() {
			return cmd, errors.NotValidf("pump=%s", args[0])
		}
		cmd.do = func(c console) (string, error) { return "", c.SelectPump(selection.Pump(n)) }
	case "start":
		cmd.do = func(c console) (string, error) { return "", c.SetPumpState(protocol.PumpStatePumping) }
	case "stop":
		cmd.do = func(c console) (string, error) { return "", c.SetPumpState(protocol.PumpStateStandby) }
	case "refresh":
		cmd.do = func(c console) (string, error) { return "", c.RequestRefresh() }
	case "show":
		cmd.do = func(c console) (string, error) {
			v, err := c.View()
			if err != nil {
				return "", err
			}
			return formatView(v), nil
		}
	case "quit":
	}
	return cmd, nil
}

func formatView(v engine.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "connection: %s attempts=%d\n", v.State.String(), v.Attempts)
	if v.LastSeen.IsZero() {
		b.WriteString("heartbeat: never\n")
	} else {
		fmt.Fprintf(&b, "heartbeat: %s\n", v.LastSeen.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "selected: %s\n", v.Pump.String())
	fmt.Fprintf(&b, "faults: %s\n", v.Faults.Status())
	for _, msg := range v.Faults.Messages {
		fmt.Fprintf(&b, "  ! %s\n", msg)
	}
	for _, d := range telemetry.Domains {
		if fields, ok := v.Telemetry[d]; ok {
			fmt.Fprintf(&b, "%s: %s\n", d, fields.String())
		}
	}
	return b.String()
}
