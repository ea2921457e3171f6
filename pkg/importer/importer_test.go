package importer

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/kvdoc/pkg/pubsub"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestImporter(t *testing.T) (*Importer, storage.Engine) {
	t.Helper()
	engine, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	require.NoError(t, engine.CreateCF("n-widgets"))

	registry := pubsub.NewRegistry()
	return New(engine, registry), engine
}

func TestImportWithKeyField(t *testing.T) {
	im, engine := newTestImporter(t)
	data, err := json.Marshal([]map[string]any{
		{"email": "a@x", "n": 1},
		{"email": "b@x", "n": 2},
	})
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "email", data)
	require.NoError(t, err)
	require.Equal(t, 2, result.ImportedCount)
	require.Empty(t, result.Errors)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "a@x", &got))
	require.Equal(t, float64(1), got["n"])
}

func TestImportFallbackKeyOnMissingField(t *testing.T) {
	im, engine := newTestImporter(t)
	data, err := json.Marshal([]map[string]any{
		{"n": 1},
		{"email": "b@x", "n": 2},
	})
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "email", data)
	require.NoError(t, err)
	require.Equal(t, 2, result.ImportedCount)
	require.Len(t, result.Errors, 1)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "item_1", &got))
	require.Equal(t, float64(1), got["n"])
}

func TestImportNoKeyFieldUsesItemFallback(t *testing.T) {
	im, engine := newTestImporter(t)
	data, err := json.Marshal([]map[string]any{{"n": 1}, {"n": 2}})
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "", data)
	require.NoError(t, err)
	require.Equal(t, 2, result.ImportedCount)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "item_2", &got))
	require.Equal(t, float64(2), got["n"])
}

func TestImportDotPathKey(t *testing.T) {
	im, engine := newTestImporter(t)
	data, err := json.Marshal([]map[string]any{
		{"data": map[string]any{"email": "nested@x"}, "n": 1},
	})
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "data.email", data)
	require.NoError(t, err)
	require.Equal(t, 1, result.ImportedCount)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "nested@x", &got))
	require.Equal(t, float64(1), got["n"])
}

func TestImportNonArrayPayloadErrors(t *testing.T) {
	im, _ := newTestImporter(t)
	_, err := im.Import("n-widgets", "email", []byte(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestImportEmptyArrayErrors(t *testing.T) {
	im, _ := newTestImporter(t)
	_, err := im.Import("n-widgets", "email", []byte(`[]`))
	require.Error(t, err)
}

func TestImportBatchesLargeArrays(t *testing.T) {
	im, _ := newTestImporter(t)
	items := make([]map[string]any, 12000)
	for i := range items {
		items[i] = map[string]any{"n": i}
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "", data)
	require.NoError(t, err)
	require.Equal(t, 12000, result.ImportedCount)
}

func TestImportNumericKeyIsStringified(t *testing.T) {
	im, engine := newTestImporter(t)
	data, err := json.Marshal([]map[string]any{{"id": 42, "v": "x"}})
	require.NoError(t, err)

	result, err := im.Import("n-widgets", "id", data)
	require.NoError(t, err)
	require.Equal(t, 1, result.ImportedCount)

	var got map[string]any
	require.NoError(t, engine.GetCF("n-widgets", "42", &got))
	require.Equal(t, "x", got["v"])
}
