package main

import (
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func newContext(t *testing.T, level string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("log-level", "", "")
	require.NoError(t, set.Set("log-level", level))
	return cli.NewContext(nil, set, nil)
}

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		assert.NoError(t, setupLogger(newContext(t, level)), "level %q", level)
	}

	err := setupLogger(newContext(t, "verbose"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("first\nsecond"))
	assert.Equal(t, "short", firstLine("short"))

	long := strings.Repeat("a", 200)
	got := firstLine(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Less(t, len(got), len(long))
}

func TestResetCommand_InvalidFingerprint(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("fingerprint", "", "")
	require.NoError(t, set.Set("fingerprint", "not-hex"))

	err := resetCommand(cli.NewContext(nil, set, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fingerprint")
}
