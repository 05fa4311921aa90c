package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/journal"
	"github.com/roach88/bootlatch/internal/testutil"
)

const (
	immediateEnv = `{"environment": "test", "embedded": {"config": {"donald": "duck"}}}`

	delegatedEnv = `environment: test
modulePrefix: my-app
embedded:
  delegateStart: true
  config:
    yo: my config
    hey: sup?
`

	typoEnv = `embedded:
  delegatestart: true
`
)

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// recordBoot journals a delegated boot resumed with overrides under id.
func recordBoot(t *testing.T, dbPath, id string, overrides map[string]any) {
	t.Helper()

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	rec := journal.NewRecorder(j, journal.WithIDGenerator(testutil.NewFixedIDGenerator(id)))
	h := host.New("my-app", host.WithObserver(rec))
	defer h.Destroy()

	require.NoError(t, h.Register(embedded.EnvironmentKey, map[string]any{
		"embedded": map[string]any{
			"delegateStart": true,
			"config":        map[string]any{"yo": "my config"},
		},
	}))
	require.NoError(t, h.Initializer("embedded", func(h *host.Host) error {
		return embedded.Initialize(h)
	}))
	require.NoError(t, h.RunInitializers())

	resume, ok := h.Resume()
	require.True(t, ok)
	require.NoError(t, resume(overrides))
}
