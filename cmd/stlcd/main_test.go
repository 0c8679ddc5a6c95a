package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("stlcd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	require.Equal(t, flagConfig{configPath: "/etc/stlcd/config.yaml"}, cfg)
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags(newFlagSet(), []string{
		"-config", "/tmp/lcd.yaml", "-listen", ":8080", "-log-level", "debug", "-once", "-dry-run",
	})
	require.NoError(t, err)
	require.Equal(t, flagConfig{
		configPath: "/tmp/lcd.yaml",
		listen:     ":8080",
		logLevel:   "debug",
		once:       true,
		dryRun:     true,
	}, cfg)

	_, err = parseFlags(newFlagSet(), []string{"-bogus"})
	require.Error(t, err)
}

func TestVersionOverridable(t *testing.T) {
	// -X only applies to string vars.
	require.NotEmpty(t, version)
	old := version
	t.Cleanup(func() { version = old })
	version = "v1.2.3"
	require.Equal(t, "v1.2.3", version)
}
