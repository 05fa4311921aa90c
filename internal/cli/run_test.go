package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/journal"
	"github.com/roach88/bootlatch/internal/testutil"
)

func TestRun_MissingArgs(t *testing.T) {
	_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRun_Immediate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "env.json", immediateEnv)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bootlatch booted (immediate)")
	assert.Contains(t, out, `config: {"donald":"duck"}`)
	assert.NotContains(t, out, "activation:")
}

func TestRun_ImmediateJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "env.json", immediateEnv)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "bootlatch", resp.Data.Name)
	assert.Equal(t, embedded.StateImmediate, resp.Data.State)
	assert.JSONEq(t, `{"donald":"duck"}`, string(resp.Data.Config))
}

func TestRun_ResumeFromFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, "env.yaml", delegatedEnv)
	overrides := writeFile(t, dir, "overrides.json", `{"yay": "one more", "yo": "new config"}`)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), envPath, "--resume", overrides)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ my-app booted (resumed)")
	assert.Contains(t, out, `config: {"hey":"sup?","yay":"one more","yo":"new config"}`)
}

func TestRun_ResumeFromStdin(t *testing.T) {
	envPath := writeFile(t, t.TempDir(), "env.yaml", delegatedEnv)

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetIn(strings.NewReader("yo: from stdin\n"))
	out, _, err := execute(cmd, envPath, "--resume", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `config: {"hey":"sup?","yo":"from stdin"}`)
}

func TestRun_ResumeEmptyOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, "env.yaml", delegatedEnv)
	overrides := writeFile(t, dir, "empty.yaml", "")

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), envPath, "--resume", overrides)
	require.NoError(t, err)
	assert.Contains(t, out, `config: {"hey":"sup?","yo":"my config"}`)
}

func TestRun_ResumeErrors(t *testing.T) {
	dir := t.TempDir()
	delegated := writeFile(t, dir, "delegated.yaml", delegatedEnv)
	immediate := writeFile(t, dir, "immediate.json", immediateEnv)
	list := writeFile(t, dir, "list.yaml", "- a\n- b\n")

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"not delegated", []string{immediate, "--resume", list}, "does not set embedded.delegateStart"},
		{"missing file", []string{delegated, "--resume", filepath.Join(dir, "nope.json")}, "failed to read overrides"},
		{"not a mapping", []string{delegated, "--resume", list}, "overrides must be a mapping"},
		{"with listen", []string{delegated, "--resume", list, "--listen", "127.0.0.1:0"}, "mutually exclusive"},
		{"hold without listen", []string{delegated, "--hold"}, "--hold requires --listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRun_DelegatedTimesOut(t *testing.T) {
	envPath := writeFile(t, t.TempDir(), "env.yaml", delegatedEnv)

	_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), envPath, "--timeout", "50ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host did not boot")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRun_ContextCancelled(t *testing.T) {
	envPath := writeFile(t, t.TempDir(), "env.yaml", delegatedEnv)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetContext(ctx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := execute(cmd, envPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidEnvironment(t *testing.T) {
	path := writeFile(t, t.TempDir(), "env.yaml", typoEnv)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ [E104]")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRun_MissingEnvironment(t *testing.T) {
	_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_RecordsJournal(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boot.db")
	envPath := writeFile(t, dir, "env.yaml", delegatedEnv)
	overrides := writeFile(t, dir, "overrides.yaml", "yay: one more\n")

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), envPath, "--db", dbPath, "--resume", overrides)
	require.NoError(t, err)
	assert.Contains(t, out, "activation:")

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	a, err := j.LatestActivation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-app", a.Host)
	assert.True(t, a.Booted())
	assert.True(t, a.DestroyedSeq.Valid)
	assert.Contains(t, out, a.ID)

	ev, err := j.LatestRegistration(context.Background(), a.ID, embedded.ConfigKey)
	require.NoError(t, err)
	assert.Equal(t, `{"hey":"sup?","yay":"one more","yo":"my config"}`, ev.Payload)
	assert.Len(t, ev.Digest, 64)

	envEv, err := j.LatestRegistration(context.Background(), a.ID, embedded.EnvironmentKey)
	require.NoError(t, err)
	assert.Contains(t, envEv.Payload, `"modulePrefix":"my-app"`)
	assert.Contains(t, envEv.Payload, `"delegateStart":true`)
}

func TestRun_FixedActivationID(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boot.db")
	envPath := writeFile(t, dir, "env.json", immediateEnv)

	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewFixedIDGenerator("act-cli"),
	})

	out, _, err := execute(cmd, envPath, "--db", dbPath)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "act-cli", resp.ActivationID)
}

func TestRun_ControlServer(t *testing.T) {
	envPath := writeFile(t, t.TempDir(), "env.yaml", delegatedEnv)

	addrs := make(chan string, 1)
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		OnListen:    func(addr string) { addrs <- addr },
	})

	started := make(chan error, 1)
	go func() {
		addr := <-addrs
		started <- startWhenResumable(addr, `{"yo": "over http"}`)
	}()

	out, _, err := execute(cmd, envPath, "--listen", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, <-started)
	assert.Contains(t, out, "✓ my-app booted (resumed)")
	assert.Contains(t, out, `config: {"hey":"sup?","yo":"over http"}`)
}

// startWhenResumable polls /status until a resume function is attached and
// then posts body to /start.
func startWhenResumable(addr, body string) error {
	base := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/status")
		if err != nil {
			return err
		}
		var status struct {
			Resumable bool `json:"resumable"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if status.Resumable {
			resp, err := http.Post(base+"/start", "application/json", strings.NewReader(body))
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return errors.New(resp.Status)
			}
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("host never became resumable")
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", data: "", want: nil},
		{name: "null", data: "null", want: nil},
		{name: "json object", data: `{"a": 1, "b": "two"}`, want: map[string]any{"a": 1, "b": "two"}},
		{name: "yaml mapping", data: "a: 1\nnested:\n  b: true\n", want: map[string]any{"a": 1, "nested": map[string]any{"b": true}}},
		{name: "scalar", data: "42", wantErr: true},
		{name: "list", data: "[1, 2]", wantErr: true},
		{name: "malformed", data: "{a: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOverrides([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_HoldServesUntilCancelled(t *testing.T) {
	envPath := writeFile(t, t.TempDir(), "env.yaml", delegatedEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan string, 1)
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		OnListen:    func(addr string) { addrs <- addr },
	})
	cmd.SetContext(ctx)

	configs := make(chan string, 1)
	go func() {
		defer cancel()
		addr := <-addrs
		if err := startWhenResumable(addr, ""); err != nil {
			configs <- err.Error()
			return
		}
		configs <- getWhenReady(addr)
	}()

	_, _, err := execute(cmd, envPath, "--listen", "127.0.0.1:0", "--hold")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hey":"sup?","yo":"my config"}`, <-configs)
}

// getWhenReady polls /readyz and returns the body of /config once the host
// booted.
func getWhenReady(addr string) string {
	base := "http://" + addr
	for i := 0; i < 500; i++ {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return err.Error()
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			resp, err := http.Get(base + "/config")
			if err != nil {
				return err.Error()
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err.Error()
			}
			return string(body)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "host never became ready"
}
