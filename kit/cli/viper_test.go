package cli

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type testConfig struct {
	addr     string
	shards   int
	gzip     bool
	lifetime time.Duration
	dogs     []string
	level    zapcore.Level
}

func newTestProgram(c *testConfig, run func() error) *Program {
	return &Program{
		Name: "testd",
		Run:  run,
		Opts: []Opt{
			NewOpt(&c.addr, "http-bind-address", ":8080", "bind address"),
			NewOpt(&c.shards, "default-shards", 1, "shards"),
			NewOpt(&c.gzip, "gzip", false, "gzip"),
			NewOpt(&c.lifetime, "access-token-lifetime", 24*time.Hour, "lifetime"),
			NewOpt(&c.dogs, "superdog", nil, "superdogs"),
			NewOpt(&c.level, "log-level", zapcore.InfoLevel, "level"),
		},
	}
}

func TestNewCommand_Defaults(t *testing.T) {
	var c testConfig
	ran := false
	cmd := NewCommand(viper.New(), newTestProgram(&c, func() error {
		ran = true
		return nil
	}))
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.True(t, ran)
	assert.Equal(t, ":8080", c.addr)
	assert.Equal(t, 1, c.shards)
	assert.False(t, c.gzip)
	assert.Equal(t, 24*time.Hour, c.lifetime)
	assert.Equal(t, zapcore.InfoLevel, c.level)
}

func TestNewCommand_FlagsAndEnv(t *testing.T) {
	t.Setenv("TESTD_DEFAULT_SHARDS", "3")
	t.Setenv("TESTD_GZIP", "true")

	var c testConfig
	cmd := NewCommand(viper.New(), newTestProgram(&c, func() error { return nil }))
	cmd.SetArgs([]string{
		"--http-bind-address", ":9999",
		"--log-level", "debug",
		"--superdog", "superdog-a:pw:a@x.io",
		"--access-token-lifetime", "1h",
	})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, ":9999", c.addr)
	assert.Equal(t, 3, c.shards)
	assert.True(t, c.gzip)
	assert.Equal(t, time.Hour, c.lifetime)
	assert.Equal(t, []string{"superdog-a:pw:a@x.io"}, c.dogs)
	assert.Equal(t, zapcore.DebugLevel, c.level)
}
