package audio

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	results map[string]ToneAnalysisResult
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{results: make(map[string]ToneAnalysisResult)}
}

func (c *capturePublisher) PublishToneResult(callID string, result ToneAnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[callID] = result
	return nil
}

func (c *capturePublisher) get(callID string) (ToneAnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[callID]
	return res, ok
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:         2,
		QueueSize:       8,
		DownloadTimeout: 5 * time.Second,
		AwaitTimeout:    5 * time.Second,
	}
}

func TestSchedulerSubmitAndGet(t *testing.T) {
	body := encodeWAV(t, 8000, 1, map[float64]float64{1100: 0.8})
	server := serveBytes(t, http.StatusOK, body)

	publisher := newCapturePublisher()
	scheduler := NewScheduler(testSchedulerConfig(), publisher, testLogger())
	defer scheduler.Shutdown()

	handle := scheduler.Submit("call-1", server.URL)
	assert.Equal(t, "call-1", handle.CallID)

	result, ready := handle.Wait(5 * time.Second)
	require.True(t, ready)
	assert.Equal(t, ToneFax, result.ToneType)
	assert.Empty(t, result.Err)

	// TryGet sees the same completed result while the job stays tracked.
	polled, ok := scheduler.TryGet("call-1", 100*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, result.ToneType, polled.ToneType)

	published, ok := publisher.get("call-1")
	require.True(t, ok)
	assert.Equal(t, ToneFax, published.ToneType)
}

func TestSchedulerGeneratesCallID(t *testing.T) {
	body := encodeWAV(t, 8000, 1, map[float64]float64{2100: 0.8})
	server := serveBytes(t, http.StatusOK, body)

	scheduler := NewScheduler(testSchedulerConfig(), nil, testLogger())
	defer scheduler.Shutdown()

	handle := scheduler.Submit("", server.URL)
	assert.NotEmpty(t, handle.CallID)

	_, ready := handle.Wait(5 * time.Second)
	assert.True(t, ready)
}

func TestSchedulerIngestFailureDegrades(t *testing.T) {
	server := serveBytes(t, http.StatusNotFound, nil)

	scheduler := NewScheduler(testSchedulerConfig(), nil, testLogger())
	defer scheduler.Shutdown()

	handle := scheduler.Submit("call-bad", server.URL)
	result, ready := handle.Wait(5 * time.Second)

	require.True(t, ready, "a failed ingest must still complete the job")
	assert.Equal(t, ToneUnknown, result.ToneType)
	assert.Equal(t, 0.0, result.Confidence)
	assert.NotEmpty(t, result.Err)
	assert.Nil(t, result.PeakFrequency)
}

func TestSchedulerFailureDoesNotPoisonPool(t *testing.T) {
	good := encodeWAV(t, 8000, 1, map[float64]float64{1100: 0.8})
	goodServer := serveBytes(t, http.StatusOK, good)
	badServer := serveBytes(t, http.StatusNotFound, nil)

	scheduler := NewScheduler(testSchedulerConfig(), nil, testLogger())
	defer scheduler.Shutdown()

	bad := scheduler.Submit("bad", badServer.URL)
	okJob := scheduler.Submit("good", goodServer.URL)

	badResult, ready := bad.Wait(5 * time.Second)
	require.True(t, ready)
	assert.Equal(t, ToneUnknown, badResult.ToneType)

	goodResult, ready := okJob.Wait(5 * time.Second)
	require.True(t, ready)
	assert.Equal(t, ToneFax, goodResult.ToneType)
}

func TestSchedulerTryGetUnknownCallID(t *testing.T) {
	scheduler := NewScheduler(testSchedulerConfig(), nil, testLogger())
	defer scheduler.Shutdown()

	_, ok := scheduler.TryGet("never-submitted", 10*time.Millisecond)
	assert.False(t, ok)
}

func TestSchedulerAwaitAllBoundedAndIdempotent(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer slow.Close()
	defer close(release)

	cfg := testSchedulerConfig()
	cfg.DownloadTimeout = 10 * time.Second
	scheduler := NewScheduler(cfg, nil, testLogger())
	defer scheduler.Shutdown()

	scheduler.Submit("stuck-1", slow.URL)
	scheduler.Submit("stuck-2", slow.URL)

	start := time.Now()
	scheduler.AwaitAll(100 * time.Millisecond)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*time.Second, "per-job bound must hold")

	// The pending set is cleared; a second call returns immediately.
	start = time.Now()
	scheduler.AwaitAll(10 * time.Second)
	assert.Less(t, time.Since(start), time.Second)

	// Abandoned jobs are no longer retrievable.
	_, ok := scheduler.TryGet("stuck-1", 0)
	assert.False(t, ok)
}

func TestSchedulerQueueFullDropsWithResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
	}))
	defer slow.Close()
	defer close(release)

	cfg := SchedulerConfig{
		Workers:         1,
		QueueSize:       1,
		DownloadTimeout: 10 * time.Second,
		AwaitTimeout:    time.Second,
	}
	scheduler := NewScheduler(cfg, nil, testLogger())
	defer scheduler.Shutdown()

	// First job occupies the worker, second fills the queue, third drops.
	scheduler.Submit("busy", slow.URL)
	<-started
	scheduler.Submit("queued", slow.URL)

	dropped := scheduler.Submit("dropped", slow.URL)
	result, ready := dropped.Wait(time.Second)
	require.True(t, ready, "a dropped job completes immediately")
	assert.Equal(t, ToneUnknown, result.ToneType)
	assert.NotEmpty(t, result.Err)
}

func TestSchedulerShutdownIdempotent(t *testing.T) {
	scheduler := NewScheduler(testSchedulerConfig(), nil, testLogger())

	scheduler.Shutdown()
	scheduler.Shutdown()

	// Submission after shutdown completes immediately with a cause.
	handle := scheduler.Submit("late", "http://example.invalid/recording.wav")
	result, ready := handle.Wait(time.Second)
	require.True(t, ready)
	assert.Equal(t, ToneUnknown, result.ToneType)
	assert.NotEmpty(t, result.Err)
}
