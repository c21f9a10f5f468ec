// Package datadog implements a Datadog backend for the internal/metrics
// facade.
//
// Flushing model: observations are buffered in memory under a mutex, a
// background loop submits them on a ticker, and Close performs one final
// submission. Long flattening runs therefore show up as a time series rather
// than a single spike at exit, while short CLI runs still deliver everything
// through the tail flush.
//
// Flush resets buffers even when submission fails; lost points are preferred
// over blocking the pipeline on the metrics intake.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"flatsheet/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options configures the backend.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "flatsheet".
	JobName string

	// Tags are extra Datadog tags (e.g. "service:flatsheet").
	Tags []string

	// FlushEvery controls the submission interval. <= 0 means 60s.
	FlushEvery time.Duration

	// Unexported test seams: deterministic clock, ticker and submitter for
	// unit tests. Production code leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of the Datadog SDK the backend needs. The SDK
// exposes a concrete *datadogV2.MetricsApi; depending on this interface
// instead lets tests submit to a fake without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	recordCounts    map[string]float64   // phase -> count
	rowCounts       map[string]float64   // table -> count
	durationSamples map[string][]float64 // phase -> seconds
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and starts
// its flush loop. Credentials come from the standard DD_API_KEY/DD_APP_KEY
// environment, via the SDK's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "flatsheet"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,

		recordCounts:    make(map[string]float64),
		rowCounts:       make(map[string]float64),
		durationSamples: make(map[string][]float64),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits one final time. Call once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricRecords:
		phase := labels["phase"]
		if phase == "" {
			phase = "unknown"
		}
		b.recordCounts[phase] += delta

	case metrics.MetricRows:
		table := labels["table"]
		if table == "" {
			return
		}
		b.rowCounts[table] += delta

	default:
		// Unknown metrics are dropped.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.MetricRunSeconds:
		phase := labels["phase"]
		if phase == "" {
			phase = "unknown"
		}
		b.durationSamples[phase] = append(b.durationSamples[phase], value)

	default:
		// Unknown histograms are dropped.
	}
}

// snapshot detaches buffered state so payload building and submission run
// outside the lock.
type snapshot struct {
	recordCounts    map[string]float64
	rowCounts       map[string]float64
	durationSamples map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		recordCounts:    b.recordCounts,
		rowCounts:       b.rowCounts,
		durationSamples: b.durationSamples,
	}
	b.recordCounts = make(map[string]float64)
	b.rowCounts = make(map[string]float64)
	b.durationSamples = make(map[string][]float64)
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.recordCounts) == 0 && len(s.rowCounts) == 0 && len(s.durationSamples) == 0
}

// Flush submits buffered metrics and resets the buffers regardless of the
// submission outcome.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, clocks or network), which is what the unit
// tests exercise.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	point := func(metric string, kind datadogV2.MetricIntakeType, value float64, tags []string) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   kind.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}

	series := make([]datadogV2.MetricSeries, 0, len(s.recordCounts)+len(s.rowCounts)+8)

	for phase, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "phase:"+phase)
		series = append(series, point("flatsheet.records.total", datadogV2.METRICINTAKETYPE_COUNT, v, tags))
	}

	for table, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "table:"+table)
		series = append(series, point("flatsheet.rows.total", datadogV2.METRICINTAKETYPE_COUNT, v, tags))
	}

	for phase, samples := range s.durationSamples {
		if len(samples) == 0 {
			continue
		}
		tags := withTags(b.baseTags, "phase:"+phase)
		for _, pc := range []struct {
			suffix string
			q      float64
		}{
			{"p50", 0.50},
			{"p95", 0.95},
			{"p99", 0.99},
		} {
			series = append(series, point("flatsheet.run.duration_seconds."+pc.suffix, datadogV2.METRICINTAKETYPE_GAUGE, percentile(samples, pc.q), tags))
		}
		series = append(series, point("flatsheet.run.duration_seconds.count", datadogV2.METRICINTAKETYPE_COUNT, float64(len(samples)), tags))
	}

	return series
}

// percentile returns the q-quantile of samples by nearest rank on a sorted
// copy.
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func withTags(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}
