// Package metrics exports prometheus instrumentation for the submission
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline implements core.PipelineMetrics on a prometheus registry.
type Pipeline struct {
	submissions    prometheus.Counter
	completions    prometheus.Counter
	failures       prometheus.Counter
	timeouts       prometheus.Counter
	retries        prometheus.Counter
	staleDiscards  prometheus.Counter
	cacheHits      prometheus.Counter
	analysisTiming prometheus.Histogram
}

// NewPipeline registers the pipeline collectors on the given registerer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_submissions_total",
			Help: "Analysis submissions started.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_completions_total",
			Help: "Submissions that completed with a normalized report.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_failures_total",
			Help: "Submissions that failed at the transport or service level.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_timeouts_total",
			Help: "Submissions abandoned after the bounded wait elapsed.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_retries_total",
			Help: "User-triggered retries after a timeout.",
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_stale_responses_discarded_total",
			Help: "Responses dropped because their fencing token was superseded.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailscope_cache_hits_total",
			Help: "Submissions answered from the in-session result cache.",
		}),
		analysisTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailscope_analysis_duration_seconds",
			Help:    "Wall time of completed analysis round-trips.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		p.submissions,
		p.completions,
		p.failures,
		p.timeouts,
		p.retries,
		p.staleDiscards,
		p.cacheHits,
		p.analysisTiming,
	)
	return p
}

func (p *Pipeline) SubmissionStarted() { p.submissions.Inc() }

func (p *Pipeline) SubmissionCompleted(d time.Duration) {
	p.completions.Inc()
	p.analysisTiming.Observe(d.Seconds())
}

func (p *Pipeline) SubmissionFailed() { p.failures.Inc() }

func (p *Pipeline) SubmissionTimedOut() { p.timeouts.Inc() }

func (p *Pipeline) RetryIssued() { p.retries.Inc() }

func (p *Pipeline) StaleResponseDiscarded() { p.staleDiscards.Inc() }

func (p *Pipeline) CacheHit() { p.cacheHits.Inc() }
