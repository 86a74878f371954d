package audio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wardial-server/pkg/errors"
	"wardial-server/pkg/metrics"
)

// ResultPublisher receives completed analysis results. Implementations
// must be safe for concurrent use; publish failures are logged, never
// propagated into the result.
type ResultPublisher interface {
	PublishToneResult(callID string, result ToneAnalysisResult) error
}

// SchedulerConfig controls the analysis worker pool.
type SchedulerConfig struct {
	// Workers is the maximum number of concurrent ingest+analyze jobs.
	Workers int

	// QueueSize bounds the backlog of submitted jobs.
	QueueSize int

	// DownloadTimeout bounds each recording download.
	DownloadTimeout time.Duration

	// AwaitTimeout is the per-job wait bound used by Shutdown.
	AwaitTimeout time.Duration
}

// DefaultSchedulerConfig returns the scheduler defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:         4,
		QueueSize:       64,
		DownloadTimeout: 30 * time.Second,
		AwaitTimeout:    5 * time.Second,
	}
}

type analysisJob struct {
	pending *PendingAnalysis
	url     string
}

// Scheduler runs recording analysis off the dialing loop on a bounded
// worker pool and tracks in-flight jobs by call ID.
//
// The pending map is the only shared mutable state in the analysis core
// and is guarded by a mutex. Submission never blocks; waiting is explicit
// and always timeout-bounded. The owning application must call Shutdown
// before exit (defer it next to construction); there is no runtime exit
// hook. Shutdown is idempotent.
type Scheduler struct {
	logger    *logrus.Logger
	ingestor  *Ingestor
	publisher ResultPublisher

	queue   chan analysisJob
	mu      sync.Mutex
	pending map[string]*PendingAnalysis

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	awaitTimeout time.Duration
}

// NewScheduler creates and starts the analysis worker pool. publisher may
// be nil when no downstream consumer is configured.
func NewScheduler(cfg SchedulerConfig, publisher ResultPublisher, logger *logrus.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		logger:       logger,
		ingestor:     NewIngestor(cfg.DownloadTimeout, logger),
		publisher:    publisher,
		queue:        make(chan analysisJob, cfg.QueueSize),
		pending:      make(map[string]*PendingAnalysis),
		ctx:          ctx,
		cancel:       cancel,
		awaitTimeout: cfg.AwaitTimeout,
	}

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	logger.WithFields(logrus.Fields{
		"workers":    cfg.Workers,
		"queue_size": cfg.QueueSize,
	}).Debug("Analysis scheduler started")

	return s
}

// Submit enqueues ingest+analysis of a recording and returns immediately
// with the pending handle. An empty callID gets a generated one. If the
// scheduler is shut down or the backlog is full, the handle completes
// straight away with an unknown-tone result carrying the cause.
func (s *Scheduler) Submit(callID, recordingURL string) *PendingAnalysis {
	if callID == "" {
		callID = uuid.NewString()
	}

	p := &PendingAnalysis{
		CallID:      callID,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	s.pending[callID] = p
	s.mu.Unlock()

	metrics.AnalysisJobsSubmitted.Inc()
	metrics.AnalysisJobsPending.Inc()

	if s.ctx.Err() != nil {
		s.complete(p, unknownResult(errors.ErrSchedulerClosed))
		return p
	}

	select {
	case s.queue <- analysisJob{pending: p, url: recordingURL}:
	default:
		s.logger.WithField("call_id", callID).Warn("Analysis queue full, dropping job")
		s.complete(p, unknownResult(errors.New("analysis queue full")))
	}

	return p
}

// TryGet polls for a completed result without holding up the call path.
// It waits at most grace and reports false when the job is still running
// or was never submitted; a pending job stays tracked either way.
func (s *Scheduler) TryGet(callID string, grace time.Duration) (ToneAnalysisResult, bool) {
	s.mu.Lock()
	p, ok := s.pending[callID]
	s.mu.Unlock()
	if !ok {
		return ToneAnalysisResult{}, false
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.result, true
	case <-timer.C:
		return ToneAnalysisResult{}, false
	}
}

// AwaitAll waits up to timeoutPerJob for each still-pending job, logging
// but never raising on stragglers, then clears the pending set. A job
// that misses its window is abandoned; the underlying download is not
// interruptible mid-flight. Safe to call repeatedly.
func (s *Scheduler) AwaitAll(timeoutPerJob time.Duration) {
	s.mu.Lock()
	snapshot := make([]*PendingAnalysis, 0, len(s.pending))
	for _, p := range s.pending {
		snapshot = append(snapshot, p)
	}
	s.pending = make(map[string]*PendingAnalysis)
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	s.logger.WithField("pending", len(snapshot)).Info("Waiting for pending analyses")

	for _, p := range snapshot {
		timer := time.NewTimer(timeoutPerJob)
		select {
		case <-p.done:
			s.logger.WithFields(logrus.Fields{
				"call_id":   p.CallID,
				"tone_type": p.result.ToneType,
			}).Debug("Analysis completed")
		case <-timer.C:
			metrics.AnalysisJobsAbandoned.Inc()
			s.logger.WithField("call_id", p.CallID).Warn("Analysis timed out, discarding result")
		}
		timer.Stop()
	}
}

// Shutdown drains pending jobs within the configured per-job bound and
// stops the workers. Calling it more than once is safe.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.AwaitAll(s.awaitTimeout)
		s.cancel()

		// Workers finish their current job, which is bounded by the
		// download timeout; don't hang past that on a stuck worker.
		drained := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(s.awaitTimeout):
			s.logger.Warn("Analysis workers still busy at shutdown, abandoning")
		}

		s.logger.Debug("Analysis scheduler stopped")
	})
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.queue:
			s.run(job)
		}
	}
}

// run executes one ingest+analyze unit of work. Ingest failures degrade
// to an unknown-tone result; nothing escapes the analysis boundary.
func (s *Scheduler) run(job analysisJob) {
	start := time.Now()

	var result ToneAnalysisResult
	samples, sampleRate, err := s.ingestor.FetchAndDecode(s.ctx, job.url)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"call_id": job.pending.CallID,
			"url":     job.url,
		}).WithError(err).Error("Recording ingest failed")
		result = unknownResult(err)
	} else {
		result = Classify(Analyze(samples, sampleRate))
	}

	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	s.complete(job.pending, result)

	fields := logrus.Fields{
		"call_id":    job.pending.CallID,
		"tone_type":  result.ToneType,
		"confidence": result.Confidence,
	}
	if result.PeakFrequency != nil {
		fields["peak_hz"] = *result.PeakFrequency
	}
	s.logger.WithFields(fields).Info("Tone analysis finished")
}

func (s *Scheduler) complete(p *PendingAnalysis, result ToneAnalysisResult) {
	p.result = result
	close(p.done)

	metrics.AnalysisJobsPending.Dec()
	metrics.AnalysisJobsCompleted.WithLabelValues(string(result.ToneType)).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishToneResult(p.CallID, result); err != nil {
			s.logger.WithField("call_id", p.CallID).WithError(err).Warn("Failed to publish analysis result")
		}
	}
}
