package subcmd

import (
	"context"
	"testing"

	"github.com/napd/console/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *config.Config) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "tui", Main: noop}}

	m, err := Parse("tui", mods)
	require.NoError(t, err)
	assert.Equal(t, "tui", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("vmc", mods)
	assert.EqualError(t, err, "unknown command='vmc'")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: noop}}) })
}
