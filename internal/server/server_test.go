package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/lacquerai/mathutils/internal/testhelper"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test suite setup
type ServerTestSuite struct {
	server *Server
	http   *httptest.Server
	config *Config
}

func setupTestSuite(t *testing.T, mutate ...func(*Config)) *ServerTestSuite {
	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	config.MaxHistory = 10
	for _, m := range mutate {
		m(config)
	}

	server, err := New(config)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &ServerTestSuite{
		server: server,
		http:   ts,
		config: config,
	}
}

func (suite *ServerTestSuite) postRun(t *testing.T, args []string) (*http.Response, RunResponse) {
	t.Helper()

	body, err := json.Marshal(RunRequest{Args: args})
	require.NoError(t, err)

	resp, err := http.Post(suite.http.URL+"/api/v1/run", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var result RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp, result
}

func TestRunEndpoint(t *testing.T) {
	suite := setupTestSuite(t)

	tests := []struct {
		name  string
		args  []string
		lines []string
	}{
		{"add", []string{"add", "2", "3"}, []string{"RESULT: 5"}},
		{"multiply", []string{"multiply", "4", "5"}, []string{"RESULT: 20"}},
		{"mixed case", []string{"ADD", "2", "3"}, []string{"RESULT: 5"}},
		{"unknown", []string{"subtract", "2", "3"}, []string{"Unknown operation: subtract"}},
		{"no args", nil, []string{dispatch.Greeting, "Startup Check: 10 + 20 = 30"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, result := suite.postRun(t, tt.args)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, execcontext.StatusCompleted, result.Status)
			assert.Equal(t, tt.lines, result.Lines)
			assert.NotEmpty(t, result.RunID)
		})
	}
}

func TestRunEndpointMalformedOperand(t *testing.T) {
	suite := setupTestSuite(t)

	resp, result := suite.postRun(t, []string{"add", "x", "3"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, execcontext.StatusFailed, result.Status)
	assert.Contains(t, result.Error, `invalid operand 2 "x"`)
	assert.Empty(t, result.Lines)

	// the failed run is still recorded
	rec, ok := suite.server.manager.Get(result.RunID)
	require.True(t, ok)
	assert.Equal(t, execcontext.StatusFailed, rec.Status)
}

func TestRunEndpointInvalidJSON(t *testing.T) {
	suite := setupTestSuite(t)

	resp, err := http.Post(suite.http.URL+"/api/v1/run", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Invalid JSON")
	assert.Equal(t, 0, suite.server.GetRunCount())
}

func TestGetRun(t *testing.T) {
	suite := setupTestSuite(t)

	_, result := suite.postRun(t, []string{"multiply", "6", "7"})

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/runs/%s", suite.http.URL, result.RunID))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rec execcontext.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, result.RunID, rec.RunID)
	assert.Equal(t, []string{"multiply", "6", "7"}, rec.Args)
	assert.Equal(t, []string{"RESULT: 42"}, rec.Lines)
	assert.Equal(t, execcontext.SourceHTTP, rec.Source)
	assert.Equal(t, dispatch.ModeCalculate, rec.Mode)
}

func TestGetRunNotFound(t *testing.T) {
	suite := setupTestSuite(t)

	resp, err := http.Get(suite.http.URL + "/api/v1/runs/non-existent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Run 'non-existent' not found")
}

func TestOperationEndpoint(t *testing.T) {
	suite := setupTestSuite(t)

	tests := []struct {
		name   string
		path   string
		status int
		result int32
		errMsg string
	}{
		{"add", "/api/v1/operations/add?a=2&b=3", http.StatusOK, 5, ""},
		{"multiply upper", "/api/v1/operations/MULTIPLY?a=-4&b=5", http.StatusOK, -20, ""},
		{"wraps", "/api/v1/operations/add?a=2147483647&b=1", http.StatusOK, -2147483648, ""},
		{"unknown", "/api/v1/operations/divide?a=1&b=2", http.StatusNotFound, 0, "Unknown operation: divide"},
		{"bad operand", "/api/v1/operations/add?a=1&b=two", http.StatusBadRequest, 0, `invalid operand 3 "two"`},
		{"missing operand", "/api/v1/operations/add?a=1", http.StatusBadRequest, 0, `missing query parameter "b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(suite.http.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tt.status, resp.StatusCode)

			if tt.errMsg != "" {
				var errResp ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
				assert.Contains(t, errResp.Error, tt.errMsg)
				return
			}

			var result OperationResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
			assert.Equal(t, tt.result, result.Result)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	suite := setupTestSuite(t)
	suite.postRun(t, []string{"add", "1", "1"})

	resp, err := http.Get(suite.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Runs)
}

func TestMetricsEndpoint(t *testing.T) {
	suite := setupTestSuite(t)
	suite.postRun(t, []string{"add", "1", "1"})
	suite.postRun(t, []string{"add", "x", "1"})

	resp, err := http.Get(suite.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	metrics := string(body)
	assert.Contains(t, metrics, `mathutils_runs_total{mode="calculate",source="http",status="completed"} 1`)
	assert.Contains(t, metrics, `mathutils_runs_total{mode="none",source="http",status="failed"} 1`)
	assert.Contains(t, metrics, "mathutils_run_duration_seconds_count")
}

func TestMetricsDisabled(t *testing.T) {
	suite := setupTestSuite(t, func(c *Config) {
		c.EnableMetrics = false
	})

	resp, err := http.Get(suite.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	suite := setupTestSuite(t)

	req, err := http.NewRequest(http.MethodOptions, suite.http.URL+"/api/v1/run", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Request-ID")
	assert.Equal(t, "X-Request-ID", resp.Header.Get("Access-Control-Expose-Headers"))
}

func TestRequestID(t *testing.T) {
	suite := setupTestSuite(t)

	resp, _ := suite.postRun(t, []string{"add", "2", "3"})
	_, err := uuid.Parse(resp.Header.Get("X-Request-ID"))
	assert.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, suite.http.URL+"/api/v1/runs/missing", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

// captureLogs routes the global logger into a buffer at level for the test.
func captureLogs(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()
	testhelper.EnableLogging(t, level)

	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() {
		log.Logger = previous
	})
	return &buf
}

func TestRequestLogging(t *testing.T) {
	suite := setupTestSuite(t)
	logs := captureLogs(t, zerolog.InfoLevel)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry), logs.String())
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "/api/v1/runs/abc", entry["path"])
	assert.Equal(t, "/api/v1/runs/{runId}", entry["route"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, false, entry["websocket"])
}

func TestRunLogsCarryRequestID(t *testing.T) {
	suite := setupTestSuite(t)
	logs := captureLogs(t, zerolog.DebugLevel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run", strings.NewReader(`{"args":["add","2","3"]}`))
	req.Header.Set("X-Request-ID", "req-2")
	rec := httptest.NewRecorder()
	suite.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var finished bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["message"] == "Invocation finished" {
			finished = true
			assert.Equal(t, "req-2", entry["request_id"])
			assert.NotEmpty(t, entry["run_id"])
		}
	}
	assert.True(t, finished, logs.String())
}

func TestServeWasm(t *testing.T) {
	wasmFile := filepath.Join(t.TempDir(), "mathutils.wasm")
	content := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	require.NoError(t, os.WriteFile(wasmFile, content, 0644))

	suite := setupTestSuite(t, func(c *Config) {
		c.WasmFile = wasmFile
	})

	resp, err := http.Get(suite.http.URL + "/mathutils.wasm")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestNewMissingWasmFile(t *testing.T) {
	config := DefaultConfig()
	config.WasmFile = filepath.Join(t.TempDir(), "missing.wasm")

	_, err := New(config)
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	suite := setupTestSuite(t)

	wsURL := "ws" + strings.TrimPrefix(suite.http.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// bare argument array
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`["multiply","4","5"]`)))
	var result RunResponse
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, execcontext.StatusCompleted, result.Status)
	assert.Equal(t, []string{"RESULT: 20"}, result.Lines)

	// request object
	require.NoError(t, conn.WriteJSON(RunRequest{Args: []string{}}))
	result = RunResponse{}
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, []string{dispatch.Greeting, "Startup Check: 10 + 20 = 30"}, result.Lines)

	// malformed operand keeps the connection open
	require.NoError(t, conn.WriteJSON([]string{"add", "x", "3"}))
	result = RunResponse{}
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, execcontext.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)

	// invalid JSON
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{`)))
	var errResp ErrorResponse
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Contains(t, errResp.Error, "invalid JSON")

	assert.Equal(t, 3, suite.server.GetRunCount())
}

func TestRunManagerHistoryBounded(t *testing.T) {
	rm := NewRunManagerWithRegistry(3, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		inv, _, err := rm.Execute(ctx, execcontext.SourceCLI, []string{"add", fmt.Sprint(i), "1"})
		require.NoError(t, err)
		ids = append(ids, inv.RunID)
	}

	assert.Equal(t, 3, rm.Count())

	_, ok := rm.Get(ids[0])
	assert.False(t, ok, "oldest run evicted")
	_, ok = rm.Get(ids[1])
	assert.False(t, ok, "second oldest run evicted")

	rec, ok := rm.Get(ids[4])
	require.True(t, ok)
	assert.Equal(t, []string{"RESULT: 5"}, rec.Lines)
}

func TestServerStartAndStop(t *testing.T) {
	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0

	server, err := New(config)
	require.NoError(t, err)
	require.NoError(t, server.Start())

	addr := server.GetAddr()
	assert.Contains(t, addr, "127.0.0.1:")
	assert.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
}

func TestStartWithGracefulShutdown(t *testing.T) {
	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 0
	config.ShutdownTimeout = 5 * time.Second

	server, err := New(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.StartWithGracefulShutdown(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
