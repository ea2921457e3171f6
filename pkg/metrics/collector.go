package metrics

import (
	"strings"
	"time"

	"github.com/cuemby/kvdoc/pkg/pubsub"
	"github.com/cuemby/kvdoc/pkg/storage"
)

// secretsCF is the global CF collector scans to approximate the live
// collection count; kept in sync with pkg/namespace's own constant rather
// than importing that package, to avoid a metrics→namespace dependency.
const secretsCF = "secrets"

const backupsSuffix = "-backups"

// Collector periodically refreshes the collections/pubsub gauges that can't
// be updated inline at the point of the event they describe (collection
// count, current subscriber counts per collection).
type Collector struct {
	engine   storage.Engine
	registry *pubsub.Registry
	stopCh   chan struct{}
}

// NewCollector builds a Collector over engine (for the collection count) and
// registry (for per-collection subscriber counts).
func NewCollector(engine storage.Engine, registry *pubsub.Registry) *Collector {
	return &Collector{
		engine:   engine,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection loop.
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

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	pairs, err := c.engine.GetRangeCFWithKeys(secretsCF, storage.RangeOptions{})
	if err != nil {
		return
	}

	total := 0
	for _, kv := range pairs {
		if strings.HasSuffix(kv.Key, backupsSuffix) {
			continue
		}
		total++
		PubsubSubscribers.WithLabelValues(kv.Key).Set(float64(c.registry.SubscriberCount(kv.Key)))
	}
	CollectionsTotal.Set(float64(total))
}
