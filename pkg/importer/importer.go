// Package importer implements bulk JSON-array ingestion into a collection:
// buffering the upload, deriving a key per item, writing in bounded
// batches, and fanning out mutation events without starving subscribers.
package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/kvdoc/pkg/metrics"
	"github.com/cuemby/kvdoc/pkg/pubsub"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
)

const (
	maxBatchSize  = 5000
	eventChunk    = 200
	chunkInterval = 2 * time.Millisecond
)

// Result reports the outcome of an import.
type Result struct {
	ImportedCount int      `json:"imported_count"`
	Errors        []string `json:"errors,omitempty"`
}

// Importer writes a JSON array upload into a collection via engine, fanning
// out mutation events for every item through registry.
type Importer struct {
	engine   storage.Engine
	registry *pubsub.Registry
}

// New builds an Importer over engine and registry.
func New(engine storage.Engine, registry *pubsub.Registry) *Importer {
	return &Importer{engine: engine, registry: registry}
}

// Import parses data as a JSON array of objects and writes it into
// internalName, deriving each item's key from keyField via dot-path lookup
// (falling back to "item_{1-based-index}" when the field is absent or not a
// scalar). It returns the count of items actually written and any per-batch
// or per-item anomalies.
func (im *Importer) Import(internalName, keyField string, data []byte) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ImportDuration)

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return Result{}, fmt.Errorf("importer: payload is not a JSON array of objects: %w", err)
	}

	batchSize := len(items)
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	var result Result
	var events []types.MutationEvent

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		pairs := make([]storage.KeyValue, 0, len(batch))
		for i, item := range batch {
			index := start + i + 1
			key, ok := deriveKey(item, keyField)
			if !ok {
				key = fmt.Sprintf("item_%d", index)
				result.Errors = append(result.Errors, fmt.Sprintf(
					"item %d: key field %q missing or not a scalar, used fallback key %q", index, keyField, key))
			}
			pairs = append(pairs, storage.KeyValue{Key: key, Value: item})
		}

		if err := im.engine.BatchInsertCF(internalName, pairs); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"batch [%d:%d]: %v", start, end, err))
			continue
		}

		result.ImportedCount += len(pairs)
		for _, p := range pairs {
			events = append(events, types.MutationEvent{
				Operation: types.OpCreate,
				Key:       p.Key,
				Value:     p.Value,
			})
		}
	}

	im.publishThrottled(internalName, events)

	if result.ImportedCount == 0 {
		return result, fmt.Errorf("importer: no items were imported")
	}
	return result, nil
}

// publishThrottled fans events out in chunks, sleeping between chunks once
// the total crosses eventChunk so a large import doesn't starve subscribers.
func (im *Importer) publishThrottled(internalName string, events []types.MutationEvent) {
	throttle := len(events) >= eventChunk
	for i := 0; i < len(events); i += eventChunk {
		end := i + eventChunk
		if end > len(events) {
			end = len(events)
		}
		for _, ev := range events[i:end] {
			im.registry.Publish(internalName, ev)
		}
		if throttle && end < len(events) {
			time.Sleep(chunkInterval)
		}
	}
}

// deriveKey looks up field in item via dot-path traversal (e.g.
// "data.email") and reports whether it resolved to a usable scalar key,
// stringifying numbers.
func deriveKey(item map[string]any, field string) (string, bool) {
	if field == "" {
		return "", false
	}
	var cur any = item
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[part]
		if !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
