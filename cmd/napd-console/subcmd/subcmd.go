// Support sub-commands in console application.
package subcmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/napd/console/internal/config"
	"github.com/napd/console/internal/state"
	"github.com/napd/console/log2"
)

type Mod struct {
	Name  string
	Usage string
	Main  func(context.Context, *config.Config) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// ExitReload tells supervisor about planned restart and exits.
func ExitReload(log *log2.Log) {
	SdNotify("RELOADING=1")
	log.Infof("exit for reload code=%d", state.ExitReload)
	os.Exit(state.ExitReload)
}
