package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	stopErr     error
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	m.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return m.stopErr
}

func (m *mockCoordinator) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// createTestApp builds an app on the in-memory backends and swaps in a mock coordinator
func createTestApp(t *testing.T, addr string) (*SeatwatchApp, *mockCoordinator) {
	t.Helper()

	app, err := NewSeatwatchApp(context.Background(),
		WithConfig(createValidTestConfig()),
		WithAddress(addr),
	)
	require.NoError(t, err)

	coord := &mockCoordinator{}
	app.components.Coordinator = coord
	return app, coord
}

func freeAddress(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestSeatwatchApp_StartAndStop(t *testing.T) {
	t.Parallel()

	addr := freeAddress(t)
	app, coord := createTestApp(t, addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, coord.wasStartCalled(), "coordinator should be started")

	require.NoError(t, app.Stop(5*time.Second))
	assert.True(t, coord.wasStopCalled(), "coordinator Stop should be called")

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestSeatwatchApp_StopWithoutStart(t *testing.T) {
	t.Parallel()

	app, coord := createTestApp(t, ":0")

	require.NoError(t, app.Stop(time.Second))
	assert.True(t, coord.wasStopCalled(), "coordinator Stop should be called even without Start")
}

func TestSeatwatchApp_StopIdempotent(t *testing.T) {
	t.Parallel()

	app, _ := createTestApp(t, freeAddress(t))

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))
	select {
	case <-errChan:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after first Stop()")
	}

	// a second Stop must not panic; the closed server may report an error
	_ = app.Stop(5 * time.Second)
}

func TestSeatwatchApp_StopWithNilCancelFunc(t *testing.T) {
	t.Parallel()

	app, _ := createTestApp(t, ":0")
	app.cancelFunc = nil

	require.NoError(t, app.Stop(5*time.Second))
}

func TestSeatwatchApp_Accessors(t *testing.T) {
	t.Parallel()

	app, _ := createTestApp(t, ":0")
	t.Cleanup(app.Close)

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "30m", app.GetConfig().Monitor.Interval)
	assert.Equal(t, ":0", app.GetHTTPServer().Addr)
	assert.NotNil(t, app.Monitor())
}
