// Package telemetry collects local query metrics for docrag corpora:
// per-corpus query counts, a latency histogram, frequent query terms,
// recent zero-result queries and exact-repeat rates. Nothing leaves the
// machine; metrics are flushed to a SQLite file in the data directory.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the histogram buckets in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one retrieval recorded for telemetry.
type QueryEvent struct {
	Corpus      string
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ZeroResultQuery is a query that retrieved nothing.
type ZeroResultQuery struct {
	Corpus    string    `json:"corpus"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

var termRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// ExtractTerms lowercases the query and returns its words of three or more
// characters.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range termRegex.FindAllString(strings.ToLower(query), -1) {
		if len([]rune(w)) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	CorpusCounts        map[string]int64        `json:"corpus_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []ZeroResultQuery       `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries in percent.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// ExactRepeatRate returns the fraction of queries seen before.
func (s *Snapshot) ExactRepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ExactRepeatCount) / float64(s.TotalQueries)
}

// Config configures a QueryMetrics collector.
type Config struct {
	TopTermsCapacity      int           // default: 100
	ZeroResultsCapacity   int           // default: 100
	RecentQueriesCapacity int           // default: 500
	FlushInterval         time.Duration // 0 = flush only on Close
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// delta holds counts recorded since the last flush.
type delta struct {
	corpora   map[string]int64
	latencies map[LatencyBucket]int64
	terms     map[string]int64
	zero      []ZeroResultQuery
}

func newDelta() delta {
	return delta{
		corpora:   make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
		terms:     make(map[string]int64),
	}
}

func (d delta) empty() bool {
	return len(d.corpora) == 0 && len(d.latencies) == 0 && len(d.terms) == 0 && len(d.zero) == 0
}

// QueryMetrics collects query telemetry. It is safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	corpora         map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[ZeroResultQuery]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	recentQueries   *lru.Cache[string, struct{}]
	exactRepeats    int64
	startTime       time.Time

	pending delta
	store   Store
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  bool
}

// NewQueryMetrics creates a collector with the default configuration. A
// nil store keeps metrics in memory only.
func NewQueryMetrics(store Store) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector.
func NewQueryMetricsWithConfig(store Store, cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		corpora:       make(map[string]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[ZeroResultQuery](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
		pending:       newDelta(),
		store:         store,
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
		go m.flushLoop(cfg.FlushInterval)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one query. It never blocks on the store.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.corpora[event.Corpus]++
	m.pending.corpora[event.Corpus]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pending.terms[term]++
	}

	if event.IsZeroResult() {
		z := ZeroResultQuery{Corpus: event.Corpus, Query: event.Query, Timestamp: event.Timestamp}
		m.zeroResults.Add(z)
		m.zeroResultCount++
		m.pending.zero = append(m.pending.zero, z)
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pending.latencies[bucket]++

	key := hashQuery(event.Corpus, event.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery normalizes a query for repeat detection.
func hashQuery(corpus, query string) string {
	sum := sha256.Sum256([]byte(corpus + "\x00" + strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the metrics collected by this process.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	corpora := make(map[string]int64, len(m.corpora))
	for k, v := range m.corpora {
		corpora[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sortTerms(terms)

	return &Snapshot{
		CorpusCounts:        corpora,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.startTime,
	}
}

func sortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Flush adds the counts recorded since the previous flush to the store.
// Counts are additive so several processes can share one store. On error
// the pending counts are kept for the next flush.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	d := m.pending
	m.pending = newDelta()
	m.mu.Unlock()

	if d.empty() {
		return nil
	}
	if err := m.store.Add(time.Now().Format(DateLayout), d.corpora, d.latencies, d.terms, d.zero); err != nil {
		m.mu.Lock()
		m.pending.merge(d)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (d *delta) merge(other delta) {
	for k, v := range other.corpora {
		d.corpora[k] += v
	}
	for k, v := range other.latencies {
		d.latencies[k] += v
	}
	for k, v := range other.terms {
		d.terms[k] += v
	}
	d.zero = append(other.zero, d.zero...)
}

// Close stops the flush loop and flushes what is pending.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		<-m.doneCh
	}
	return m.Flush()
}
