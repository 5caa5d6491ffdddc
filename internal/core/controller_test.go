package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// gatedClient blocks each Analyze call until the gate for that file name is
// released, ignoring or honoring the context depending on honorContext.
// Ignoring the context lets tests deliver a genuinely late response for a
// superseded request.
type gatedClient struct {
	mu           sync.Mutex
	gates        map[string]chan []byte
	calls        int
	files        []*SelectedFile
	err          error
	honorContext bool
}

func newGatedClient(honorContext bool) *gatedClient {
	return &gatedClient{
		gates:        map[string]chan []byte{},
		honorContext: honorContext,
	}
}

func (c *gatedClient) gate(name string) chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	gate, ok := c.gates[name]
	if !ok {
		gate = make(chan []byte, 1)
		c.gates[name] = gate
	}
	return gate
}

// release unblocks the Analyze call for the named file with the given body.
func (c *gatedClient) release(name string, raw []byte) {
	c.gate(name) <- raw
}

func (c *gatedClient) Analyze(ctx context.Context, file *SelectedFile) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	c.files = append(c.files, file)
	err := c.err
	c.mu.Unlock()

	gate := c.gate(file.Name)
	if c.honorContext {
		select {
		case raw := <-gate:
			return raw, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	raw := <-gate
	return raw, err
}

func (c *gatedClient) Health(ctx context.Context) error { return nil }

func (c *gatedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// echoNormalizer turns the raw payload into a report whose FromAddress is
// the payload text, so tests can tell which response won.
type echoNormalizer struct{}

func (echoNormalizer) Normalize(raw []byte) *RiskReport {
	return &RiskReport{
		FromAddress: string(raw),
		RiskLevel:   RiskUnknown,
	}
}

func newTestController(client AnalysisClient, timeout time.Duration) *SubmissionController {
	return NewSubmissionController(
		client, echoNormalizer{}, nil, NewRetryPolicy(), nil, zap.NewNop(), timeout, time.Hour)
}

func awaitTerminal(t *testing.T, c *SubmissionController) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.AwaitTerminal(ctx)
	if err != nil {
		t.Fatalf("timed out waiting for a terminal state, last state %s", snap.State)
	}
	return snap
}

func emlFile(name string) *SelectedFile {
	return &SelectedFile{Name: name, Size: 4, Data: []byte(name)}
}

func TestSubmitCompletesWithNormalizedReport(t *testing.T) {
	client := newGatedClient(true)
	c := newTestController(client, time.Second)
	defer c.Close()

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("a.eml", []byte("report-a"))

	snap := awaitTerminal(t, c)
	if snap.State != StateCompleted {
		t.Fatalf("expected Completed, got %s", snap.State)
	}
	if snap.Report == nil || snap.Report.FromAddress != "report-a" {
		t.Fatalf("unexpected report: %+v", snap.Report)
	}
	if snap.IsLoading {
		t.Fatalf("expected IsLoading=false after completion")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	client := newGatedClient(false)
	c := newTestController(client, time.Minute)
	defer c.Close()

	idA, err := c.Submit(emlFile("a.eml"))
	if err != nil {
		t.Fatalf("submit A failed: %v", err)
	}
	idB, err := c.Submit(emlFile("b.eml"))
	if err != nil {
		t.Fatalf("submit B failed: %v", err)
	}
	if idB <= idA {
		t.Fatalf("expected fencing token to increase, got %d then %d", idA, idB)
	}

	// B answers first and wins.
	client.release("b.eml", []byte("report-b"))
	snap := awaitTerminal(t, c)
	if snap.State != StateCompleted || snap.Report.FromAddress != "report-b" {
		t.Fatalf("expected B's report, got state %s report %+v", snap.State, snap.Report)
	}

	// A's response arrives late and must be dropped silently.
	client.release("a.eml", []byte("report-a"))
	time.Sleep(50 * time.Millisecond)
	snap = c.Snapshot()
	if snap.State != StateCompleted || snap.Report.FromAddress != "report-b" {
		t.Fatalf("stale response overwrote the result: %+v", snap.Report)
	}
}

func TestTimeoutTransitionsOnceAndRetryResubmits(t *testing.T) {
	client := newGatedClient(true)
	c := newTestController(client, 20*time.Millisecond)
	defer c.Close()

	file := emlFile("slow.eml")
	idFirst, err := c.Submit(file)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	snap := awaitTerminal(t, c)
	if snap.State != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", snap.State)
	}
	if snap.ErrorMessage == "" {
		t.Fatalf("expected a timeout message")
	}
	if !snap.CanRetry {
		t.Fatalf("expected retry to be offered after a timeout")
	}

	// The gate is buffered, so the retried call finds its response waiting
	// and cannot time out again.
	client.release("slow.eml", []byte("report-retry"))

	idRetry, err := c.Retry()
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if idRetry <= idFirst {
		t.Fatalf("expected a fresh fencing token, got %d after %d", idRetry, idFirst)
	}

	snap = awaitTerminal(t, c)
	if snap.State != StateCompleted || snap.Report.FromAddress != "report-retry" {
		t.Fatalf("expected retry to complete, got state %s", snap.State)
	}

	if got := client.callCount(); got != 2 {
		t.Fatalf("expected exactly 2 analysis calls, got %d", got)
	}
	if client.files[1] != file {
		t.Fatalf("retry submitted a different file")
	}
}

func TestRetryRefusedOutsideTimedOut(t *testing.T) {
	client := newGatedClient(true)
	c := newTestController(client, time.Second)
	defer c.Close()

	if _, err := c.Retry(); err == nil {
		t.Fatalf("expected retry to be refused in Idle")
	}

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("a.eml", []byte("done"))
	awaitTerminal(t, c)

	if c.CanRetry() {
		t.Fatalf("retry must not be offered after Completed")
	}
	if _, err := c.Retry(); err == nil {
		t.Fatalf("expected retry to be refused after Completed")
	}
}

func TestServiceFailureSurfacesBodyMessage(t *testing.T) {
	client := newGatedClient(true)
	client.err = &ServiceError{StatusCode: 500, Message: "Analysis error: model unavailable"}
	c := newTestController(client, time.Second)
	defer c.Close()

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("a.eml", nil)

	snap := awaitTerminal(t, c)
	if snap.State != StateFailed {
		t.Fatalf("expected Failed, got %s", snap.State)
	}
	if snap.ErrorMessage != "Analysis error: model unavailable" {
		t.Fatalf("expected the service message, got %q", snap.ErrorMessage)
	}
	if snap.CanRetry {
		t.Fatalf("retry must not be offered after Failed")
	}
}

func TestNetworkFailureSurfacesGenericMessage(t *testing.T) {
	client := newGatedClient(true)
	client.err = &NetworkError{Err: errors.New("connection refused")}
	c := newTestController(client, time.Second)
	defer c.Close()

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("a.eml", nil)

	snap := awaitTerminal(t, c)
	if snap.State != StateFailed {
		t.Fatalf("expected Failed, got %s", snap.State)
	}
	if snap.ErrorMessage != "could not reach the analysis service" {
		t.Fatalf("unexpected message %q", snap.ErrorMessage)
	}
}

func TestSelectFileCancelsLiveRequest(t *testing.T) {
	client := newGatedClient(false)
	c := newTestController(client, time.Minute)
	defer c.Close()

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	newFile := emlFile("b.eml")
	c.SelectFile(newFile)

	snap := c.Snapshot()
	if snap.State != StateIdle {
		t.Fatalf("expected Idle after selecting a new file, got %s", snap.State)
	}
	if snap.SelectedFile != newFile {
		t.Fatalf("expected the new file to be selected")
	}

	// The canceled request's response must not resurface.
	client.release("a.eml", []byte("report-a"))
	time.Sleep(50 * time.Millisecond)
	snap = c.Snapshot()
	if snap.State != StateIdle || snap.Report != nil {
		t.Fatalf("stale response escaped cancellation: state %s report %+v", snap.State, snap.Report)
	}
}

func TestDismissErrorReturnsToIdle(t *testing.T) {
	client := newGatedClient(true)
	client.err = &NetworkError{Err: errors.New("boom")}
	c := newTestController(client, time.Second)
	defer c.Close()

	if _, err := c.Submit(emlFile("a.eml")); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("a.eml", nil)
	awaitTerminal(t, c)

	c.DismissError()
	snap := c.Snapshot()
	if snap.State != StateIdle || snap.ErrorMessage != "" {
		t.Fatalf("expected a clean Idle state, got %s %q", snap.State, snap.ErrorMessage)
	}
	if snap.SelectedFile == nil {
		t.Fatalf("dismissing the error must keep the selected file")
	}
}

// stubCache is a minimal CacheRepository for the cache-hit path.
type stubCache struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string]*CacheEntry{}}
}

func (s *stubCache) Get(ctx context.Context, digest string) (*CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[digest]
	if !ok {
		return nil, errors.New("not found")
	}
	return entry, nil
}

func (s *stubCache) Set(ctx context.Context, entry *CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.FileDigest] = entry
	return nil
}

func (s *stubCache) Delete(ctx context.Context, digest string) error { return nil }
func (s *stubCache) Cleanup(ctx context.Context) error               { return nil }

func TestResubmittingIdenticalFileHitsCache(t *testing.T) {
	client := newGatedClient(true)
	cacheRepo := newStubCache()
	c := NewSubmissionController(
		client, echoNormalizer{}, cacheRepo, NewRetryPolicy(), nil, zap.NewNop(), time.Second, time.Hour)
	defer c.Close()

	file := emlFile("same.eml")
	if _, err := c.Submit(file); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	client.release("same.eml", []byte("network-report"))
	snap := awaitTerminal(t, c)
	if snap.Report.FromAddress != "network-report" {
		t.Fatalf("unexpected first report: %+v", snap.Report)
	}

	// The identical content answers from the cache without a second call.
	if _, err := c.Submit(emlFile("same.eml")); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	snap = awaitTerminal(t, c)
	if snap.State != StateCompleted || snap.Report.FromAddress != "network-report" {
		t.Fatalf("expected the cached report, got %+v", snap.Report)
	}
	if got := client.callCount(); got != 1 {
		t.Fatalf("expected a single network call, got %d", got)
	}
}
