package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSubmissionTimeout bounds the wait for an analysis response.
const DefaultSubmissionTimeout = 5 * time.Second

// SubmissionState is the lifecycle state of the submission pipeline.
type SubmissionState int

const (
	StateIdle SubmissionState = iota
	StateSubmitting
	StateAwaitingResponse
	StateCompleted
	StateFailed
	StateTimedOut
)

// String returns the state name for logging.
func (s SubmissionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a submission.
func (s SubmissionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// AnalysisRequest is one in-flight submission. The ID is a monotonically
// increasing fencing token; responses carrying a stale ID are discarded. The
// correlation ID only appears in log lines.
type AnalysisRequest struct {
	ID            uint64
	CorrelationID string
	File          *SelectedFile
	cancel        context.CancelFunc
}

// Snapshot is a point-in-time view of the controller for the presentation
// layer.
type Snapshot struct {
	State        SubmissionState
	SelectedFile *SelectedFile
	IsLoading    bool
	ErrorMessage string
	Report       *RiskReport
	CanRetry     bool
}

// SubmissionController owns the lifecycle of analysis submissions. At most
// one request is live at any time; submitting again or picking a new file
// cancels the previous request and invalidates its fencing token.
type SubmissionController struct {
	client     AnalysisClient
	normalizer ReportNormalizer
	cache      CacheRepository
	retry      *RetryPolicy
	metrics    PipelineMetrics
	logger     *zap.Logger
	timeout    time.Duration
	cacheTTL   time.Duration

	mu       sync.Mutex
	nextID   uint64
	state    SubmissionState
	selected *SelectedFile
	live     *AnalysisRequest
	report   *RiskReport
	errMsg   string
	updates  chan struct{}
}

// NewSubmissionController creates a new submission controller. The cache may
// be nil when result caching is disabled.
func NewSubmissionController(
	client AnalysisClient,
	normalizer ReportNormalizer,
	cache CacheRepository,
	retry *RetryPolicy,
	metrics PipelineMetrics,
	logger *zap.Logger,
	timeout time.Duration,
	cacheTTL time.Duration,
) *SubmissionController {
	if timeout <= 0 {
		timeout = DefaultSubmissionTimeout
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SubmissionController{
		client:     client,
		normalizer: normalizer,
		cache:      cache,
		retry:      retry,
		metrics:    metrics,
		logger:     logger,
		timeout:    timeout,
		cacheTTL:   cacheTTL,
		state:      StateIdle,
		updates:    make(chan struct{}, 1),
	}
}

// SelectFile replaces the selected file. A live request is canceled and the
// controller returns to Idle for the new file.
func (c *SubmissionController) SelectFile(file *SelectedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLiveLocked()
	c.selected = file
	c.report = nil
	c.errMsg = ""
	c.state = StateIdle
	c.notifyLocked()
}

// Submit starts a new analysis for the given file (or the currently selected
// one when nil) and returns the fencing token assigned to the request.
func (c *SubmissionController) Submit(file *SelectedFile) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if file == nil {
		file = c.selected
	}
	return c.submitLocked(file)
}

// Retry re-submits the last file after a timeout, producing a new request
// id. It is refused in any other state.
func (c *SubmissionController) Retry() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.retry.Allowed(c.state, c.selected) {
		return 0, fmt.Errorf("retry is not available in state %s", c.state)
	}
	c.metrics.RetryIssued()
	return c.submitLocked(c.selected)
}

// CanRetry reports whether a retry of the last submission is permitted.
func (c *SubmissionController) CanRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry.Allowed(c.state, c.selected)
}

// DismissError clears the error banner and returns the controller to Idle
// after a failed or timed-out submission.
func (c *SubmissionController) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errMsg = ""
	if c.state == StateFailed || c.state == StateTimedOut {
		c.state = StateIdle
	}
	c.notifyLocked()
}

// Snapshot returns the current view of the controller.
func (c *SubmissionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		State:        c.state,
		SelectedFile: c.selected,
		IsLoading:    c.state == StateSubmitting || c.state == StateAwaitingResponse,
		ErrorMessage: c.errMsg,
		Report:       c.report,
		CanRetry:     c.retry.Allowed(c.state, c.selected),
	}
}

// Updates returns a coalescing channel signaled on every state transition.
func (c *SubmissionController) Updates() <-chan struct{} {
	return c.updates
}

// AwaitTerminal blocks until the live submission reaches a terminal state or
// the context is done.
func (c *SubmissionController) AwaitTerminal(ctx context.Context) (Snapshot, error) {
	for {
		snap := c.Snapshot()
		if snap.State.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-c.updates:
		}
	}
}

// Close cancels any live request.
func (c *SubmissionController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLiveLocked()
}

func (c *SubmissionController) submitLocked(file *SelectedFile) (uint64, error) {
	if file == nil {
		return 0, errors.New("no file selected")
	}

	c.cancelLiveLocked()
	c.nextID++
	id := c.nextID

	c.selected = file
	c.report = nil
	c.errMsg = ""
	c.state = StateSubmitting
	c.metrics.SubmissionStarted()

	// A file already analyzed in this session completes without a network
	// round-trip.
	if c.cache != nil {
		if entry, err := c.cache.Get(context.Background(), file.Digest()); err == nil {
			c.logger.Debug("Cache hit for file",
				zap.String("file", file.Name),
				zap.String("digest", entry.FileDigest))
			c.metrics.CacheHit()
			c.report = entry.Report
			c.state = StateCompleted
			c.notifyLocked()
			return id, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	req := &AnalysisRequest{
		ID:            id,
		CorrelationID: uuid.NewString(),
		File:          file,
		cancel:        cancel,
	}
	c.live = req
	c.state = StateAwaitingResponse
	c.logger.Info("Submitting file for analysis",
		zap.Uint64("request_id", req.ID),
		zap.String("correlation_id", req.CorrelationID),
		zap.String("file", file.Name),
		zap.Int64("size", file.Size))
	c.notifyLocked()

	go c.run(ctx, req)
	return id, nil
}

// run performs the network call outside the lock and applies the outcome,
// discarding it when the fencing token is no longer current.
func (c *SubmissionController) run(ctx context.Context, req *AnalysisRequest) {
	start := time.Now()
	raw, err := c.client.Analyze(ctx, req.File)
	req.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == nil || c.live.ID != req.ID {
		c.logger.Debug("Discarding stale analysis response",
			zap.Uint64("request_id", req.ID),
			zap.String("correlation_id", req.CorrelationID))
		c.metrics.StaleResponseDiscarded()
		return
	}
	c.live = nil

	switch {
	case err == nil:
		report := c.normalizer.Normalize(raw)
		report.AnalyzedAt = time.Now()
		c.report = report
		c.state = StateCompleted
		c.metrics.SubmissionCompleted(time.Since(start))
		c.logger.Info("Analysis completed",
			zap.Uint64("request_id", req.ID),
			zap.Int("overall_score", report.OverallScore),
			zap.String("risk_level", string(report.RiskLevel)),
			zap.Duration("elapsed", time.Since(start)))
		c.storeInCacheLocked(req.File, report)

	case errors.Is(err, context.DeadlineExceeded):
		c.state = StateTimedOut
		c.errMsg = (&TimeoutError{Elapsed: c.timeout.String()}).Error()
		c.metrics.SubmissionTimedOut()
		c.logger.Warn("Analysis timed out",
			zap.Uint64("request_id", req.ID),
			zap.Duration("timeout", c.timeout))

	case errors.Is(err, context.Canceled):
		// Canceled without being superseded, e.g. on shutdown.
		c.state = StateIdle

	default:
		c.state = StateFailed
		c.errMsg = failureMessage(err)
		c.metrics.SubmissionFailed()
		c.logger.Error("Analysis failed",
			zap.Uint64("request_id", req.ID),
			zap.Error(err))
	}
	c.notifyLocked()
}

func (c *SubmissionController) storeInCacheLocked(file *SelectedFile, report *RiskReport) {
	if c.cache == nil || report.IsError() {
		return
	}
	entry := &CacheEntry{
		FileDigest: file.Digest(),
		FileName:   file.Name,
		Report:     report,
		LastSeen:   time.Now(),
		ExpiresAt:  time.Now().Add(c.cacheTTL),
	}
	if err := c.cache.Set(context.Background(), entry); err != nil {
		c.logger.Error("Failed to update result cache", zap.Error(err))
	}
}

func (c *SubmissionController) cancelLiveLocked() {
	if c.live != nil {
		c.logger.Debug("Canceling live request",
			zap.Uint64("request_id", c.live.ID),
			zap.String("correlation_id", c.live.CorrelationID))
		c.live.cancel()
		c.live = nil
	}
}

func (c *SubmissionController) notifyLocked() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// failureMessage extracts a user-facing message from a transport failure,
// preferring the service's own message when one was present.
func failureMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Error()
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "could not reach the analysis service"
	}
	return "analysis request failed"
}

type nopMetrics struct{}

func (nopMetrics) SubmissionStarted()                  {}
func (nopMetrics) SubmissionCompleted(d time.Duration) {}
func (nopMetrics) SubmissionFailed()                   {}
func (nopMetrics) SubmissionTimedOut()                 {}
func (nopMetrics) RetryIssued()                        {}
func (nopMetrics) StaleResponseDiscarded()             {}
func (nopMetrics) CacheHit()                           {}
