package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/purchase-predictor/internal/config"
	"github.com/sells-group/purchase-predictor/internal/ranking"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// testConfig writes a dataset, a feature list and a linear model scoring
// by Base Price into a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	c := &config.Config{
		Artifacts: config.ArtifactsConfig{
			ModelPath:    filepath.Join(dir, "model.yaml"),
			DatasetPath:  filepath.Join(dir, "services.csv"),
			FeaturesPath: filepath.Join(dir, "features.txt"),
		},
		Dataset: config.DatasetConfig{Table: "services", Delimiter: ","},
		Ranking: config.RankingConfig{TopK: 5},
		Server:  config.ServerConfig{Port: 5000, AllowedOrigins: []string{"*"}, RateBurst: 10, Metrics: true},
		Startup: config.StartupConfig{FailFast: true},
	}

	data := "ID,Title,Description,Owner,Base Price,Total Reviews,Average Stars,Availability,Plus Achetés\n"
	for i := 1; i <= 7; i++ {
		data += fmt.Sprintf("%d,Service %d,Desc %d,owner%d,%d,%d,4,%d,0\n", i, i, i, i%2, i*10, i, i%2)
	}
	require.NoError(t, os.WriteFile(c.Artifacts.DatasetPath, []byte(data), 0644))
	require.NoError(t, os.WriteFile(c.Artifacts.FeaturesPath, []byte("# model inputs\nBase Price\nprice_per_review\n"), 0644))
	require.NoError(t, os.WriteFile(c.Artifacts.ModelPath, []byte("kind: linear\ncoefficients: [1, 0]\n"), 0644))
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "rank"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "purchase-predictor", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRankCommand_Flags(t *testing.T) {
	flag := rankCmd.Flags().Lookup("top")
	require.NotNil(t, flag, "rank command should have --top flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestLoadEngine_FailFast(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.Remove(c.Artifacts.ModelPath))

	_, err := loadEngine(context.Background(), c, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load artifacts")
}

func TestLoadEngine_Degraded(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.Remove(c.Artifacts.ModelPath))

	engine, err := loadEngine(context.Background(), c, false)
	require.NoError(t, err)
	assert.ErrorIs(t, engine.Ready(), ranking.ErrNotReady)
}

func TestBuildRouter_DegradedEngine(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.Remove(c.Artifacts.FeaturesPath))
	engine, err := loadEngine(context.Background(), c, false)
	require.NoError(t, err)
	h := buildRouter(engine, c)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Welcome to the Service Purchase Prediction API", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/most_purchased_services", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestBuildRouter_Ranking(t *testing.T) {
	c := testConfig(t)
	engine, err := loadEngine(context.Background(), c, true)
	require.NoError(t, err)
	h := buildRouter(engine, c)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/most_purchased_services", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 5)
	assert.Equal(t, 7.0, body[0]["Service ID"])
	assert.Equal(t, 70.0, body[0]["Predicted Purchases"])
	assert.Equal(t, 3.0, body[4]["Service ID"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","services":7}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRankCommand(t *testing.T) {
	cfg = testConfig(t)
	rankTop = 2
	defer func() { rankTop = 0 }()

	var out bytes.Buffer
	rankCmd.SetOut(&out)
	defer rankCmd.SetOut(nil)

	require.NoError(t, rankCmd.RunE(rankCmd, nil))

	var ranked []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, 7.0, ranked[0]["Service ID"])
	assert.Equal(t, 6.0, ranked[1]["Service ID"])
}

func TestRankCommand_MissingDataset(t *testing.T) {
	cfg = testConfig(t)
	require.NoError(t, os.Remove(cfg.Artifacts.DatasetPath))

	err := rankCmd.RunE(rankCmd, nil)
	assert.Error(t, err)
}

// getFreePort returns a free TCP port on localhost.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestServer_Lifecycle(t *testing.T) {
	c := testConfig(t)
	engine, err := loadEngine(context.Background(), c, true)
	require.NoError(t, err)

	port := getFreePort(t)
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           buildRouter(engine, c),
		ReadHeaderTimeout: time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var resp *http.Response
	for i := 0; i < 40; i++ {
		resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	require.NoError(t, err, "server did not become ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestRunServer_DrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	port := getFreePort(t)
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- runServer(ctx, srv) }()

	status := make(chan int, 1)
	go func() {
		for i := 0; i < 40; i++ {
			resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/slow", port))
			if err == nil {
				resp.Body.Close()
				status <- resp.StatusCode
				return
			}
			time.Sleep(25 * time.Millisecond)
		}
		status <- 0
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancel()
	select {
	case err := <-runErr:
		t.Fatalf("runServer returned before the request finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, http.StatusOK, <-status)
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runServer did not return after the request drained")
	}
}

func TestRunServer_ListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	srv := &http.Server{Addr: l.Addr().String(), ReadHeaderTimeout: time.Second}
	err = runServer(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}
