package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/testutil"
)

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// newRecordedHost builds a host with the embedded initializer installed,
// env registered and every event recorded under activation "act-1".
func newRecordedHost(t *testing.T, j *Journal, env map[string]any) (*host.Host, *Recorder) {
	t.Helper()
	rec := NewRecorder(j, WithIDGenerator(testutil.NewFixedIDGenerator("act-1")))
	h := host.New("journal-test", host.WithObserver(rec))
	t.Cleanup(h.Destroy)

	require.NoError(t, h.Register(embedded.EnvironmentKey, env))
	require.NoError(t, h.Initializer("embedded", func(h *host.Host) error {
		return embedded.Initialize(h)
	}))
	return h, rec
}
