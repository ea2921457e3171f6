package api

import (
	"io"
	"net/http"

	"github.com/cuemby/kvdoc/pkg/httpkit"
	"github.com/cuemby/kvdoc/pkg/metrics"
	"github.com/cuemby/kvdoc/pkg/namespace"
)

// handleImport accepts a multipart upload (field name "file") whose
// contents are a JSON array, and hands the raw bytes to the importer. A
// plain application/json body (no multipart wrapper) is also accepted, so a
// simple client can POST the array directly.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	keyField := r.URL.Query().Get("key")

	data, err := readImportPayload(r)
	if err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := s.importer.Import(nsCtx.InternalName, keyField, data)
	if err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.ImportItemsTotal.WithLabelValues(nsCtx.UserName).Add(float64(result.ImportedCount))
	httpkit.WriteJSON(w, http.StatusCreated, result)
}

// readImportPayload extracts the raw JSON-array bytes from either a
// multipart "file" field or a plain request body.
func readImportPayload(r *http.Request) ([]byte, error) {
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}
