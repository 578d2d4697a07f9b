// Package dedup drops repeated deliveries of the same event arriving from
// redundant feeds. Messages are identified by a hash of their normalized
// payload; the first one is forwarded and later copies are counted.
package dedup

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/metrics"
)

// Decision is the outcome for one message.
type Decision int

const (
	Forward Decision = iota
	Drop
)

func (d Decision) String() string {
	if d == Drop {
		return "duplicate"
	}
	return "prime"
}

// Counts are the counters of one analytics window.
type Counts struct {
	Primes     int64
	Duplicates int64
	DelaySumMs int64
}

// Deduplicator remembers the hashes of recently seen payloads. The cache is
// bounded by entry count only; the least recently used hash is evicted.
type Deduplicator struct {
	cache            *lru.Cache
	now              func() time.Time
	alertOnDuplicate bool
	metrics          *metrics.Metrics
	logger           *slog.Logger

	mu     sync.Mutex
	counts Counts
}

func NewDeduplicator(capacity int, alertOnDuplicate bool, m *metrics.Metrics) (*Deduplicator, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	return &Deduplicator{
		cache:            cache,
		now:              time.Now,
		alertOnDuplicate: alertOnDuplicate,
		metrics:          m,
		logger:           slog.Default().With("component", "deduplicator"),
	}, nil
}

// Check hashes msg and records the decision. A miss stores the hash with the
// current time.
func (d *Deduplicator) Check(msg kafka.Message) Decision {
	h := HashPayload(Normalize(envelope.SchemaOf(msg), msg.Value))
	nowMs := d.now().UnixMilli()

	// Get and Add are individually safe; the lock makes the pair atomic so
	// two copies racing in cannot both count as primes.
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.cache.Get(h); ok {
		delay := nowMs - v.(int64)
		d.counts.Duplicates++
		d.counts.DelaySumMs += delay
		d.metrics.DedupMessagesTotal.WithLabelValues(Drop.String()).Inc()
		if d.alertOnDuplicate {
			d.logger.Error("duplicate received", "hash", h.String(), "delay_ms", delay, "key", string(msg.Key))
		}
		return Drop
	}

	d.cache.Add(h, nowMs)
	d.counts.Primes++
	d.metrics.DedupMessagesTotal.WithLabelValues(Forward.String()).Inc()
	d.metrics.DedupCacheEntries.Set(float64(d.cache.Len()))
	return Forward
}

// Drain returns the counters of the current window and resets them.
func (d *Deduplicator) Drain() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.counts
	d.counts = Counts{}
	return c
}
