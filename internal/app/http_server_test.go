package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

type probeResult struct {
	status int
	body   string
}

func probe(t *testing.T, url string) probeResult {
	t.Helper()

	var lastErr error
	for attempt := 0; attempt < 50; attempt++ {
		resp, err := http.Get(url)
		if err != nil {
			lastErr = err
			time.Sleep(20 * time.Millisecond)
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, readErr)
		return probeResult{status: resp.StatusCode, body: string(body)}
	}
	t.Fatalf("server at %s did not respond: %v", url, lastErr)
	return probeResult{}
}

func startTestMetricsServer(t *testing.T, healthHandler *healthcheck.Handler) string {
	t.Helper()

	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "metrics-server"), healthHandler)
	require.NotNil(t, srv)
	return fmt.Sprintf("http://localhost:%d", port)
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	base := startTestMetricsServer(t, healthcheck.NewHandler(version.Version()))

	metrics := probe(t, base+"/metrics")
	require.Equal(t, http.StatusOK, metrics.status)
	require.NotEmpty(t, metrics.body)

	healthz := probe(t, base+"/healthz")
	require.Equal(t, http.StatusOK, healthz.status)
	var report healthcheck.Response
	require.NoError(t, json.Unmarshal([]byte(healthz.body), &report))
	require.Equal(t, healthcheck.StatusHealthy, report.Status)
	require.Equal(t, version.Version(), report.Version)

	livez := probe(t, base+"/livez")
	require.Equal(t, probeResult{status: http.StatusOK, body: "ok"}, livez)

	readyz := probe(t, base+"/readyz")
	require.Equal(t, probeResult{status: http.StatusOK, body: "ready"}, readyz)
}

func TestStartMetricsServer_StorageDownIsNotReady(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))
	base := startTestMetricsServer(t, healthHandler)

	require.Equal(t, http.StatusServiceUnavailable, probe(t, base+"/healthz").status)
	require.Equal(t, probeResult{status: http.StatusServiceUnavailable, body: "not ready"}, probe(t, base+"/readyz"))
	require.Equal(t, http.StatusOK, probe(t, base+"/livez").status)
}

func TestStartMetricsServer_CacheDownIsDegraded(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterOptional("redis", healthcheck.NewSimpleChecker("redis", func(context.Context) error {
		return errors.New("redis unavailable")
	}))
	base := startTestMetricsServer(t, healthHandler)

	healthz := probe(t, base+"/healthz")
	require.Equal(t, http.StatusOK, healthz.status)
	var report healthcheck.Response
	require.NoError(t, json.Unmarshal([]byte(healthz.body), &report))
	require.Equal(t, healthcheck.StatusDegraded, report.Status)
	require.Equal(t, healthcheck.StatusDegraded, report.Checks["redis"].Status)

	require.Equal(t, http.StatusOK, probe(t, base+"/readyz").status)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	startMetricsServer(ctx, fmt.Sprintf(":%d", port), log.WithField("test", "metrics-shutdown"), healthcheck.NewHandler("test"))

	url := fmt.Sprintf("http://localhost:%d/livez", port)
	require.Equal(t, http.StatusOK, probe(t, url).status)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "http-shutdown")

	require.NotPanics(t, func() { shutdownHTTP(nil, logger) })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), ReadHeaderTimeout: time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	url := "http://" + listener.Addr().String()
	require.Equal(t, http.StatusNoContent, probe(t, url).status)

	shutdownHTTP(srv, logger)
	require.ErrorIs(t, <-served, http.ErrServerClosed)
}

func TestStopGRPC(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	done := make(chan struct{})
	go func() {
		stopGRPC(server, log.WithField("test", "grpc-stop"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("stopGRPC did not return")
	}
	require.NoError(t, <-served)
}

func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
