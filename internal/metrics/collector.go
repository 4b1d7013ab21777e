package metrics

import "time"

// StatsProvider is implemented by the Persistence Repository and the
// in-memory fuzzy index; the Collector polls it on a fixed interval rather
// than reaching into their internals directly.
type StatsProvider interface {
	// ItemCountsByKind returns the live item count per content kind
	// (text, image, file).
	ItemCountsByKind() (map[string]int64, error)
	// StoreSizeBytes returns the combined size of inline and externally
	// stored payloads.
	StoreSizeBytes() (int64, error)
}

// FuzzyIndexStats is implemented by the search engine's in-memory fuzzy
// index.
type FuzzyIndexStats interface {
	Size() int
	Tombstones() int
}

// Collector periodically polls the store and fuzzy index and republishes
// their state as gauges, following the ticker-driven collect() loop of
// cuemby-warren/pkg/metrics.Collector.
type Collector struct {
	store  StatsProvider
	fuzzy  FuzzyIndexStats
	stopCh chan struct{}
}

// NewCollector builds a Collector. fuzzy may be nil before the search
// engine's fuzzy index has completed its first build.
func NewCollector(store StatsProvider, fuzzy FuzzyIndexStats) *Collector {
	return &Collector{store: store, fuzzy: fuzzy, stopCh: make(chan struct{})}
}

// Start begins collecting on a 15s interval, matching the pack's cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStoreMetrics()
	c.collectFuzzyMetrics()
}

func (c *Collector) collectStoreMetrics() {
	if c.store == nil {
		return
	}
	if counts, err := c.store.ItemCountsByKind(); err == nil {
		for kind, n := range counts {
			ItemsTotal.WithLabelValues(kind).Set(float64(n))
		}
	}
	if size, err := c.store.StoreSizeBytes(); err == nil {
		StoreSizeBytes.Set(float64(size))
	}
}

func (c *Collector) collectFuzzyMetrics() {
	if c.fuzzy == nil {
		return
	}
	FuzzyIndexSize.Set(float64(c.fuzzy.Size()))
	FuzzyIndexTombstones.Set(float64(c.fuzzy.Tombstones()))
}
