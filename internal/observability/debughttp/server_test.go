package debughttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	logx "dueq/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var client = &http.Client{
	Timeout:   2 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func get(t *testing.T, url, bearer string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func startServer(t *testing.T, cfg Config, status StatusFunc) *Server {
	t.Helper()
	s := New(cfg, logx.Nop(), status)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))
	})
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return s
}

func TestServeStatusAndHealth(t *testing.T) {
	s := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0"}, func() any {
		return map[string]int{"pending": 3}
	})
	base := "http://" + s.Addr()

	code, body := get(t, base+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, base+"/debug/status", "")
	require.Equal(t, http.StatusOK, code)
	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 3, got["pending"])

	code, _ = get(t, base+"/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestTokenRequired(t *testing.T) {
	s := startServer(t, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, func() any { return "up" })
	base := "http://" + s.Addr()

	code, _ := get(t, base+"/debug/status", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, base+"/debug/status", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, base+"/debug/status?token=wrong", "s3cret")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(t, base+"/debug/status", "s3cret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, base+"/debug/status?token=s3cret", "")
	assert.Equal(t, http.StatusOK, code)

	// Liveness stays open.
	code, _ = get(t, base+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestReconfigureDisable(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Start(ctx)
	assert.Equal(t, "", s.Addr(), "disabled server must not listen")

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Equal(t, "", s.Addr())
	require.NoError(t, s.Stop(ctx))
}

func TestRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, "", s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:80":   true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.0.0.5:6060":  false,
		"nonsense":       false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}
