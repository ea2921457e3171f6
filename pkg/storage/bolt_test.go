package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *BoltEngine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

type widget struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

func TestCFLifecycle(t *testing.T) {
	e := newTestEngine(t)

	exists, err := e.CFExists("widgets")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, e.CreateCF("widgets"))

	var target *Error
	err = e.CreateCF("widgets")
	require.True(t, errors.As(err, &target))
	require.Equal(t, InvalidColumnFamily, target.Kind)

	exists, err = e.CFExists("widgets")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, e.DropCF("widgets"))
	err = e.DropCF("widgets")
	require.True(t, errors.As(err, &target))
	require.Equal(t, InvalidColumnFamily, target.Kind)
}

func TestInsertGetDelete(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))

	require.NoError(t, e.InsertCF("widgets", "a", widget{Name: "anvil", Price: 10}))

	var got widget
	require.NoError(t, e.GetCF("widgets", "a", &got))
	require.Equal(t, widget{Name: "anvil", Price: 10}, got)

	require.NoError(t, e.DeleteCF("widgets", "a"))
	err := e.GetCF("widgets", "a", &got)
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, KeyNotFound, se.Kind)

	// Deleting a missing key is not an error.
	require.NoError(t, e.DeleteCF("widgets", "a"))
}

func TestGetOnMissingCF(t *testing.T) {
	e := newTestEngine(t)
	var out widget
	err := e.GetCF("nope", "a", &out)
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, InvalidColumnFamily, se.Kind)
}

func TestBatchInsertAtomic(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))

	pairs := []KeyValue{
		{Key: "a", Value: widget{Name: "a", Price: 1}},
		{Key: "b", Value: widget{Name: "b", Price: 2}},
		{Key: "c", Value: widget{Name: "c", Price: 3}},
	}
	require.NoError(t, e.BatchInsertCF("widgets", pairs))

	for _, p := range pairs {
		var got widget
		require.NoError(t, e.GetCF("widgets", p.Key, &got))
	}
}

func seedRange(t *testing.T, e *BoltEngine, cf string) {
	t.Helper()
	require.NoError(t, e.CreateCF(cf))
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, e.InsertCF(cf, k, widget{Name: k}))
	}
}

func TestRangeForward(t *testing.T) {
	e := newTestEngine(t)
	seedRange(t, e, "widgets")

	pairs, err := e.GetRangeCFWithKeys("widgets", RangeOptions{From: "b", To: "e"})
	require.NoError(t, err)
	var keys []string
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	require.Equal(t, []string{"b", "c", "d"}, keys)
}

func TestRangeForwardLimit(t *testing.T) {
	e := newTestEngine(t)
	seedRange(t, e, "widgets")

	pairs, err := e.GetRangeCFWithKeys("widgets", RangeOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "a", pairs[0].Key)
	require.Equal(t, "b", pairs[1].Key)
}

func TestRangeReverse(t *testing.T) {
	e := newTestEngine(t)
	seedRange(t, e, "widgets")

	pairs, err := e.GetRangeCFWithKeys("widgets", RangeOptions{From: "b", To: "e", Dir: Reverse})
	require.NoError(t, err)
	var keys []string
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	require.Equal(t, []string{"d", "c", "b"}, keys)
}

func TestRangeReverseUnbounded(t *testing.T) {
	e := newTestEngine(t)
	seedRange(t, e, "widgets")

	pairs, err := e.GetRangeCFWithKeys("widgets", RangeOptions{Dir: Reverse, Limit: 2})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "e", pairs[0].Key)
	require.Equal(t, "d", pairs[1].Key)
}

func TestQueryCF(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))
	require.NoError(t, e.InsertCF("widgets", "a", widget{Name: "anvil", Price: 10}))
	require.NoError(t, e.InsertCF("widgets", "b", widget{Name: "bolt", Price: 50}))
	require.NoError(t, e.InsertCF("widgets", "c", widget{Name: "crate", Price: 5}))

	pairs, err := e.QueryCFWithKeys("widgets", "$[?@.price>8]")
	require.NoError(t, err)
	var keys []string
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	require.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestQueryCFInvalidExpr(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))

	_, err := e.QueryCFWithKeys("widgets", "not-a-path")
	var se *Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, Query, se.Kind)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))
	require.NoError(t, e.InsertCF("widgets", "a", widget{Name: "anvil", Price: 10}))
	require.NoError(t, e.InsertCF("widgets", "b", widget{Name: "bolt", Price: 50}))

	backupPath := filepath.Join(t.TempDir(), "widgets.bak")
	require.NoError(t, e.CreateBackup("widgets", backupPath))

	require.NoError(t, e.DropCF("widgets"))
	exists, err := e.CFExists("widgets")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, e.RestoreBackup("widgets", backupPath))

	var got widget
	require.NoError(t, e.GetCF("widgets", "a", &got))
	require.Equal(t, "anvil", got.Name)
	require.NoError(t, e.GetCF("widgets", "b", &got))
	require.Equal(t, "bolt", got.Name)
}

func TestCFSizeOf(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateCF("widgets"))

	empty, err := e.CFSizeOf("widgets")
	require.NoError(t, err)
	require.Zero(t, empty.SSTBytes)

	require.NoError(t, e.InsertCF("widgets", "a", widget{Name: "anvil", Price: 10}))
	nonEmpty, err := e.CFSizeOf("widgets")
	require.NoError(t, err)
	require.Greater(t, nonEmpty.SSTBytes, int64(0))
}
