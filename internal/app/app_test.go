package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dueq/internal/storage"
	"dueq/internal/task/engine"
	logx "dueq/pkg/logx"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of task jobs
// and the reads of the test.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Fields(s.b.String())
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "dueq.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDemoRunsInDueOrderAndIsJournaled(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "outcomes")
	cfgPath := writeConfig(t, dir, fmt.Sprintf(`
logging:
  level: error
  console: false
engine:
  workers: 2
storage:
  driver: file
  path: %s
demo:
  tasks:
    - {label: B, when: "in:120ms"}
    - {label: A, when: "in:20ms"}
    - {label: C, when: "in:70ms"}
`, journalPath))

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	var out syncBuffer
	tasks, err := a.ScheduleDemo(&out)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopDemoDone))
	// Stop is idempotent.
	require.NoError(t, a.Stop(ctx, StopDemoDone))

	assert.Equal(t, []string{"A", "C", "B"}, out.Lines())
	assert.Len(t, a.Results(), 3)

	st, err := storage.Open(storage.Config{Driver: "file", Path: journalPath}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	names := map[string]bool{}
	for _, o := range got {
		names[o.Name] = true
		assert.True(t, o.OK)
		assert.False(t, o.Started.Before(o.DueAt))
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, names)
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := NewApp(writeConfig(t, dir, "engine:\n  threads: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = NewApp(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestStopBeforeStart(t *testing.T) {
	a, err := NewApp(writeConfig(t, t.TempDir(), "logging: {level: error, console: false}\n"))
	require.NoError(t, err)
	assert.Nil(t, a.Scheduler())
	_, err = a.ScheduleDemo(&syncBuffer{})
	assert.Error(t, err)
	assert.NoError(t, a.Stop(context.Background(), StopAppStop))
}

func TestBuiltinDemo(t *testing.T) {
	now := time.Now()
	specs := builtinDemo(now)
	require.Len(t, specs, 4)
	assert.Equal(t, "T1", specs[0].Label)
	assert.Equal(t, "in:5s", specs[1].When)
	assert.True(t, strings.HasPrefix(specs[3].When, "at:"))
}

func TestOutcomeOf(t *testing.T) {
	due := time.Now()
	r := engine.Result{
		ID: "x", Name: "n", DueAt: due, Started: due.Add(30 * time.Millisecond),
		Lateness: 30 * time.Millisecond, Duration: 5 * time.Millisecond, Err: fmt.Errorf("bad"),
	}
	o := outcomeOf(r)
	assert.Equal(t, int64(30), o.LatenessMS)
	assert.Equal(t, int64(5), o.DurationMS)
	assert.False(t, o.OK)
	assert.Equal(t, "bad", o.Error)
	assert.True(t, o.At.Equal(due.Add(35*time.Millisecond)))
}

func TestDebugStatusServesSnapshot(t *testing.T) {
	a, err := NewApp(writeConfig(t, t.TempDir(), `
logging: {level: error, console: false}
debug: {enabled: true, addr: "127.0.0.1:0", token: tok}
`))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	require.Eventually(t, func() bool { return a.debug.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodGet, "http://"+a.debug.Addr()+"/debug/status", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	client := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Scheduler struct {
			State string
		} `json:"scheduler"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "idle", doc.Scheduler.State)
}
