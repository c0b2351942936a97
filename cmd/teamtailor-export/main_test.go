package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zieneks/teamtailor-csv-export/internal/config"
	"github.com/zieneks/teamtailor-csv-export/internal/testutil"
	"github.com/zieneks/teamtailor-csv-export/pkg/client"
	"github.com/zieneks/teamtailor-csv-export/pkg/csvexport"
	"github.com/zieneks/teamtailor-csv-export/pkg/pagination"
	"github.com/zieneks/teamtailor-csv-export/pkg/ratelimit"
)

const expectedDocument = csvexport.BOM +
	"candidate_id,first_name,last_name,email,job_application_id,job_application_created_at\n" +
	"1,Ada,Lovelace,ada@example.com,a,2024-01-01\n" +
	"1,Ada,Lovelace,ada@example.com,b,2024-01-02\n" +
	"2,Grace,Hopper,grace@example.com,,"

func setupTwoPages(mock *testutil.MockTeamtailor) {
	mock.SetPage(1, testutil.NewPageResponse(testutil.Page{
		Candidates: []testutil.Candidate{
			{ID: "1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", JobApplicationIDs: []string{"a", "b"}},
		},
		JobApplications: []testutil.JobApplication{
			{ID: "a", CreatedAt: "2024-01-01"},
			{ID: "b", CreatedAt: "2024-01-02"},
		},
		Next:        mock.URL() + "/candidates?page[number]=2",
		RecordCount: 2,
	}.JSON()))
	mock.SetPage(2, testutil.NewPageResponse(testutil.Page{
		Candidates:  []testutil.Candidate{{ID: "2", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"}},
		RecordCount: 2,
	}.JSON()))
}

func testConfig(mock *testutil.MockTeamtailor) *config.Config {
	return &config.Config{
		APIKey:        "test-key",
		BaseURL:       mock.URL(),
		APIVersion:    client.DefaultAPIVersion,
		Port:          8080,
		MaxPages:      pagination.DefaultConfig().MaxPages,
		ExportTimeout: 10 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	clientCfg := cfg.ClientConfig()
	clientCfg.RequestsPerSecond = 0
	clientCfg.Retry.InitialBackoff = time.Millisecond

	exporter, err := newExporter(clientCfg, cfg.PaginationConfig())
	require.NoError(t, err)

	ts := httptest.NewServer(newServer(cfg, exporter, nil, nil).routes())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready_without_redis", func(t *testing.T) {
		srv := newServer(&config.Config{}, nil, nil, nil)
		w := httptest.NewRecorder()

		srv.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer redisClient.Close()

		tracker := ratelimit.NewTracker(redisClient, zerolog.Nop())
		srv := newServer(&config.Config{}, nil, redisClient, tracker)
		w := httptest.NewRecorder()

		srv.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	ts := newTestServer(t, testConfig(mock))

	resp, body := get(t, ts.URL+"/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "teamtailor_rate_limit_remaining")
}

func TestExportEndpoint_Success(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	setupTwoPages(mock)
	ts := newTestServer(t, testConfig(mock))

	resp, body := get(t, ts.URL+exportPath)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, csvexport.ContentType, resp.Header.Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="candidates-\d{4}-\d{2}-\d{2}\.csv"$`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, expectedDocument, body)
	assert.Equal(t, []int{1, 2}, mock.RequestedPages())
	assert.Equal(t, "Token token=test-key", mock.LastRequestHeader().Get("Authorization"))
}

func TestExportEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*testutil.MockTeamtailor, *config.Config)
		status   int
		requests int
	}{
		{
			name:     "missing_api_key",
			setup:    func(_ *testutil.MockTeamtailor, cfg *config.Config) { cfg.APIKey = "" },
			status:   http.StatusInternalServerError,
			requests: 0,
		},
		{
			name: "invalid_api_key",
			setup: func(m *testutil.MockTeamtailor, _ *config.Config) {
				m.Enqueue(testutil.NewStatusResponse(http.StatusUnauthorized))
			},
			status:   http.StatusUnauthorized,
			requests: 1,
		},
		{
			name: "access_denied",
			setup: func(m *testutil.MockTeamtailor, _ *config.Config) {
				m.Enqueue(testutil.NewStatusResponse(http.StatusForbidden))
			},
			status:   http.StatusForbidden,
			requests: 1,
		},
		{
			name: "rate_limit_exhausted",
			setup: func(m *testutil.MockTeamtailor, _ *config.Config) {
				for i := 0; i < 4; i++ {
					m.Enqueue(testutil.NewRateLimitResponse())
				}
			},
			status:   http.StatusTooManyRequests,
			requests: 4,
		},
		{
			name: "upstream_error",
			setup: func(m *testutil.MockTeamtailor, _ *config.Config) {
				m.Enqueue(testutil.NewStatusResponse(http.StatusInternalServerError))
			},
			status:   http.StatusBadGateway,
			requests: 1,
		},
		{
			name: "page_limit",
			setup: func(m *testutil.MockTeamtailor, cfg *config.Config) {
				setupTwoPages(m)
				cfg.MaxPages = 1
			},
			status:   http.StatusBadGateway,
			requests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockTeamtailor()
			defer mock.Close()
			cfg := testConfig(mock)
			tt.setup(mock, cfg)
			ts := newTestServer(t, cfg)

			resp, body := get(t, ts.URL+exportPath)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Contains(t, body, `"error":`)
			assert.NotContains(t, body, csvexport.BOM, "no partial document on failure")
			assert.Equal(t, tt.requests, mock.RequestCount())
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{client.ErrMissingCredential, http.StatusInternalServerError},
		{&client.UpstreamError{StatusCode: 401, Err: client.ErrInvalidCredential}, http.StatusUnauthorized},
		{&client.UpstreamError{StatusCode: 403, Err: client.ErrAccessDenied}, http.StatusForbidden},
		{&client.UpstreamError{StatusCode: 429, Err: client.ErrRateLimitExceeded}, http.StatusTooManyRequests},
		{pagination.ErrPageLimitExceeded, http.StatusBadGateway},
		{client.ErrContextCancelled, http.StatusGatewayTimeout},
		{&client.UpstreamError{StatusCode: 503}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, message := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, message)
		})
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>export</h1>"), 0o644))

	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	cfg := testConfig(mock)
	cfg.StaticDir = dir
	ts := newTestServer(t, cfg)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>export</h1>")

	resp, _ = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func setCommandEnv(t *testing.T, mock *testutil.MockTeamtailor, apiKey string) string {
	t.Helper()
	t.Setenv("TEAMTAILOR_API_KEY", apiKey)
	t.Setenv("TEAMTAILOR_BASE_URL", mock.URL())
	t.Setenv("REQUESTS_PER_SECOND", "0")
	t.Setenv("REDIS_URL", "")
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestExportCommand_File(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	setupTwoPages(mock)
	envFile := setCommandEnv(t, mock, "cli-key")
	out := filepath.Join(t.TempDir(), "candidates.csv")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"export", "--env-file", envFile, "--out", out})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, expectedDocument, string(data))
	assert.Equal(t, "Token token=cli-key", mock.LastRequestHeader().Get("Authorization"))
}

func TestExportCommand_Stdout(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	setupTwoPages(mock)
	envFile := setCommandEnv(t, mock, "cli-key")

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"export", "--env-file", envFile})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, expectedDocument, stdout.String())
}

func TestExportCommand_MissingKeyWritesNothing(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	envFile := setCommandEnv(t, mock, "")
	out := filepath.Join(t.TempDir(), "candidates.csv")

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"export", "--env-file", envFile, "--out", out})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrMissingCredential)
	assert.NoFileExists(t, out)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	mock := testutil.NewMockTeamtailor()
	defer mock.Close()
	envFile := setCommandEnv(t, mock, "key")

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"export", "--env-file", envFile, "--max-pages", "-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "max pages must be >= 0"))
}
