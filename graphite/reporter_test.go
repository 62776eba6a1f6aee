package graphite

import (
	"bufio"
	"net"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodgit/elasticsearch-metrics/errors"
	"github.com/bodgit/elasticsearch-metrics/metric"
)

// fakeGraphite is a plaintext Graphite endpoint capturing every line it
// receives and how many connections were made.
type fakeGraphite struct {
	listener net.Listener

	mu    sync.Mutex
	conns int
	lines []string
}

func newFakeGraphite(t *testing.T) *fakeGraphite {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeGraphite{listener: listener}
	go f.acceptLoop(listener)
	t.Cleanup(func() { _ = f.listener.Close() })

	return f
}

func (f *fakeGraphite) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}

		f.mu.Lock()
		f.conns++
		f.mu.Unlock()

		go func(conn net.Conn) {
			defer func() { _ = conn.Close() }()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				f.mu.Lock()
				f.lines = append(f.lines, scanner.Text())
				f.mu.Unlock()
			}
		}(conn)
	}
}

// stop closes the listener so subsequent connections are refused
func (f *fakeGraphite) stop() {
	_ = f.listener.Close()
}

// restart reopens the listener on the same port
func (f *fakeGraphite) restart(t *testing.T) {
	t.Helper()

	listener, err := net.Listen("tcp", f.listener.Addr().String())
	require.NoError(t, err)

	f.listener = listener
	go f.acceptLoop(listener)
}

func (f *fakeGraphite) port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

func (f *fakeGraphite) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

func (f *fakeGraphite) receivedLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func registryWithGauge(t *testing.T, name string, value float64) *metric.MetricsRegistry {
	t.Helper()

	registry := metric.NewMetricsRegistry(nil)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: "Test gauge",
	})
	gauge.Set(value)
	require.NoError(t, registry.RegisterGauge(name, gauge))

	return registry
}

func TestNewReporter_MissingHostname(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	_, err := NewReporter(registry, Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "missing hostname should be an invalid-configuration error")
}

func TestNewReporter_Defaults(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	reporter, err := NewReporter(registry, Config{Hostname: "gr.test"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2003, reporter.config.Port)
	assert.Equal(t, time.Minute, reporter.config.Interval)
}

func TestReporter_SingleTick(t *testing.T) {
	server := newFakeGraphite(t)
	registry := registryWithGauge(t, "document_count", 1234)
	mock := clock.NewMock()

	reporter, err := NewReporter(registry, Config{
		Hostname: "127.0.0.1",
		Port:     server.port(),
		Interval: time.Second,
		Prefix:   "es",
	}, nil, WithClock(mock))
	require.NoError(t, err)

	reporter.Start()
	defer reporter.Shutdown()

	// Let the timer goroutine install its ticker before advancing
	time.Sleep(50 * time.Millisecond)
	mock.Add(time.Second)

	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	line := server.receivedLines()[0]
	pattern := regexp.MustCompile(`^es\.document_count (-?\d+(\.\d+)?) (\d+)$`)
	match := pattern.FindStringSubmatch(line)
	require.NotNil(t, match, "line %q should match the plaintext protocol", line)

	value, err := strconv.ParseFloat(match[1], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, value, 0.0)

	// Timestamp is the mock clock's Unix time at the tick
	timestamp, err := strconv.ParseInt(match[3], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, mock.Now().Unix(), timestamp)
}

func TestReporter_OneLinePerMetricPerTick(t *testing.T) {
	server := newFakeGraphite(t)

	registry := metric.NewMetricsRegistry(nil)
	for _, name := range []string{"first_metric", "second_metric", "third_metric"} {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: "Test gauge"})
		gauge.Set(1)
		require.NoError(t, registry.RegisterGauge(name, gauge))
	}

	mock := clock.NewMock()
	reporter, err := NewReporter(registry, Config{
		Hostname: "127.0.0.1",
		Port:     server.port(),
		Interval: time.Second,
		Prefix:   "es",
	}, nil, WithClock(mock))
	require.NoError(t, err)

	reporter.Start()
	defer reporter.Shutdown()
	time.Sleep(50 * time.Millisecond)

	const ticks = 3
	for i := 1; i <= ticks; i++ {
		mock.Add(time.Second)
		expected := i * 3
		require.Eventually(t, func() bool {
			return len(server.receivedLines()) == expected
		}, 2*time.Second, 10*time.Millisecond, "tick %d", i)
	}

	assert.Equal(t, ticks, server.connCount(), "one connection per tick")

	pattern := regexp.MustCompile(`^es\.\w+ -?\d+(\.\d+)? \d+$`)
	for _, line := range server.receivedLines() {
		assert.Regexp(t, pattern, line)
	}
}

func TestReporter_FailedTickIsAbandoned(t *testing.T) {
	server := newFakeGraphite(t)
	registry := registryWithGauge(t, "document_count", 42)
	mock := clock.NewMock()

	reporter, err := NewReporter(registry, Config{
		Hostname: "127.0.0.1",
		Port:     server.port(),
		Interval: time.Second,
		Prefix:   "es",
	}, nil, WithClock(mock))
	require.NoError(t, err)

	reporter.Start()
	defer reporter.Shutdown()
	time.Sleep(50 * time.Millisecond)

	// Tick 1 lands normally
	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Tick 2 hits a refused connection and is abandoned
	server.stop()
	mock.Add(time.Second)
	time.Sleep(100 * time.Millisecond)

	// Tick 3 succeeds again; exactly one tick's data was lost
	server.restart(t)
	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// No duplicated or queued data from the failed tick
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, server.receivedLines(), 2)
}

func TestReporter_ShutdownStopsTicks(t *testing.T) {
	server := newFakeGraphite(t)
	registry := registryWithGauge(t, "document_count", 1)
	mock := clock.NewMock()

	reporter, err := NewReporter(registry, Config{
		Hostname: "127.0.0.1",
		Port:     server.port(),
		Interval: time.Second,
	}, nil, WithClock(mock))
	require.NoError(t, err)

	reporter.Start()
	time.Sleep(50 * time.Millisecond)
	reporter.Shutdown()

	// Advancing the clock after shutdown must produce no transmissions
	mock.Add(10 * time.Second)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, server.connCount())
	assert.Equal(t, stateStopped, reporter.state)
}

func TestReporter_ShutdownBeforeStart(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	reporter, err := NewReporter(registry, Config{Hostname: "gr.test"}, nil)
	require.NoError(t, err)

	// Never started: shutdown is still safe and terminal
	reporter.Shutdown()
	assert.Equal(t, stateStopped, reporter.state)
}

func TestReporter_ShutdownIdempotent(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	reporter, err := NewReporter(registry, Config{Hostname: "gr.test", Interval: time.Hour}, nil)
	require.NoError(t, err)

	reporter.Start()
	reporter.Shutdown()
	reporter.Shutdown()
	assert.Equal(t, stateStopped, reporter.state)
}

func TestReporter_StartAfterShutdownIgnored(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	reporter, err := NewReporter(registry, Config{Hostname: "gr.test", Interval: time.Hour}, nil)
	require.NoError(t, err)

	reporter.Shutdown()

	// Stopped is terminal; a late start must not spawn a timer
	reporter.Start()
	assert.Equal(t, stateStopped, reporter.state)
}

func TestReporter_DoubleStartIgnored(t *testing.T) {
	registry := metric.NewMetricsRegistry(nil)

	reporter, err := NewReporter(registry, Config{Hostname: "gr.test", Interval: time.Hour}, nil)
	require.NoError(t, err)

	reporter.Start()
	reporter.Start()
	reporter.Shutdown()
	assert.Equal(t, stateStopped, reporter.state)
}

func TestReporter_LazyGaugeEvaluatedPerTick(t *testing.T) {
	server := newFakeGraphite(t)

	registry := metric.NewMetricsRegistry(nil)
	var mu sync.Mutex
	value := 10.0
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "live_gauge",
		Help: "Changes between ticks",
	}, func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return value
	})
	require.NoError(t, registry.RegisterGaugeFunc("live_gauge", gauge))

	mock := clock.NewMock()
	reporter, err := NewReporter(registry, Config{
		Hostname: "127.0.0.1",
		Port:     server.port(),
		Interval: time.Second,
		Prefix:   "es",
	}, nil, WithClock(mock))
	require.NoError(t, err)

	reporter.Start()
	defer reporter.Shutdown()
	time.Sleep(50 * time.Millisecond)

	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	value = 20
	mu.Unlock()

	mock.Add(time.Second)
	require.Eventually(t, func() bool {
		return len(server.receivedLines()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	lines := server.receivedLines()
	assert.Contains(t, lines[0], "es.live_gauge 10 ")
	assert.Contains(t, lines[1], "es.live_gauge 20 ")
}
