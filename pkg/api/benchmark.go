package api

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/kvdoc/pkg/httpkit"
	"github.com/cuemby/kvdoc/pkg/storage"
)

// benchmarkCF is the scratch collection every benchmark run writes to and
// drops afterward; it never collides with a tenant collection's derived
// name since it isn't hash-prefixed.
const benchmarkCF = "__benchmark_scratch"

const defaultBatchSize = 100

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

type opMetrics struct {
	Count      int   `json:"count"`
	Success    int   `json:"success"`
	DurationMs int64 `json:"duration_ms"`
}

// handleBenchmark runs a synthetic write/read/delete workload against a
// scratch collection and reports timing and throughput, recovered from the
// original implementation's diagnostic endpoint. It checks X-ADMIN-TOKEN
// directly since /benchmark is never routed through the namespace
// middleware chain (it isn't a tenant collection).
func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-ADMIN-TOKEN") != s.adminToken {
		httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		httpkit.WriteError(w, http.StatusBadRequest, "missing or invalid count")
		return
	}
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		httpkit.WriteError(w, http.StatusBadRequest, "missing or invalid size")
		return
	}
	batchSize := defaultBatchSize
	if v := q.Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpkit.WriteError(w, http.StatusBadRequest, "invalid batch_size")
			return
		}
		batchSize = n
	}

	if exists, _ := s.engine.CFExists(benchmarkCF); !exists {
		if err := s.engine.CreateCF(benchmarkCF); err != nil {
			httpkit.WriteStorageError(w, err)
			return
		}
	}
	defer func() { _ = s.engine.DropCF(benchmarkCF) }()

	keys := make([]string, count)
	values := make([]string, count)
	for i := 0; i < count; i++ {
		keys[i] = "bench_key_" + strconv.Itoa(i)
		values[i] = randomString(size)
	}

	totalStart := time.Now()

	writeStart := time.Now()
	writes := opMetrics{Count: count}
	for start := 0; start < count; start += batchSize {
		end := start + batchSize
		if end > count {
			end = count
		}
		pairs := make([]storage.KeyValue, end-start)
		for i := start; i < end; i++ {
			pairs[i-start] = storage.KeyValue{Key: keys[i], Value: values[i]}
		}
		if err := s.engine.BatchInsertCF(benchmarkCF, pairs); err == nil {
			writes.Success += len(pairs)
		}
	}
	writes.DurationMs = time.Since(writeStart).Milliseconds()

	readStart := time.Now()
	reads := opMetrics{Count: count}
	for _, k := range keys {
		var out any
		if err := s.engine.GetCF(benchmarkCF, k, &out); err == nil {
			reads.Success++
		}
	}
	reads.DurationMs = time.Since(readStart).Milliseconds()

	deleteStart := time.Now()
	deletes := opMetrics{Count: count}
	for _, k := range keys {
		if err := s.engine.DeleteCF(benchmarkCF, k); err == nil {
			deletes.Success++
		}
	}
	deletes.DurationMs = time.Since(deleteStart).Milliseconds()

	totalDuration := time.Since(totalStart)
	writeDurationSecs := float64(writes.DurationMs) / 1000
	readDurationSecs := float64(reads.DurationMs) / 1000
	mbWritten := float64(count*size) / (1024 * 1024)

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"params": map[string]any{
			"count":      count,
			"size":       size,
			"batch_size": batchSize,
		},
		"operations": map[string]any{
			"writes":  writes,
			"reads":   reads,
			"deletes": deletes,
		},
		"throughput": map[string]any{
			"writes_per_sec":     safeDiv(float64(count), writeDurationSecs),
			"reads_per_sec":      safeDiv(float64(count), readDurationSecs),
			"mb_written_per_sec": safeDiv(mbWritten, writeDurationSecs),
			"total_ops_per_sec":  safeDiv(float64(count*3), totalDuration.Seconds()),
		},
		"totals": map[string]any{
			"duration_ms":     totalDuration.Milliseconds(),
			"data_written_mb": mbWritten,
		},
	})
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func randomString(n int) string {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			out[i] = alphanumeric[0]
			continue
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out)
}
