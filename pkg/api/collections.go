package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/kvdoc/pkg/httpkit"
	"github.com/cuemby/kvdoc/pkg/jsonpath"
	"github.com/cuemby/kvdoc/pkg/log"
	"github.com/cuemby/kvdoc/pkg/namespace"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
	"github.com/gorilla/mux"
)

// queryBody is the POST /{U} request shape: either a JSONPath query or a
// range query, never both. Keys defaults to true when absent.
type queryBody struct {
	Query string `json:"query,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Order string `json:"order,omitempty"`
	Keys  *bool  `json:"keys,omitempty"`
}

func (q queryBody) wantKeys() bool {
	if q.Keys == nil {
		return true
	}
	return *q.Keys
}

func direction(order string) storage.Direction {
	if order == "desc" {
		return storage.Reverse
	}
	return storage.Forward
}

func (s *Server) handleCollectionHead(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	exists, err := s.engine.CFExists(nsCtx.InternalName)
	if err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCollectionCreate(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	if err := s.engine.CreateCF(nsCtx.InternalName); err != nil {
		if se, ok := err.(*storage.Error); ok && se.Kind == storage.InvalidColumnFamily {
			httpkit.WriteError(w, http.StatusConflict, "collection already exists")
			return
		}
		httpkit.WriteStorageError(w, err)
		return
	}
	secretRecord := types.SecretRecord{CreatedAt: time.Now().UTC(), Secret: namespace.HashSecret(nsCtx.Secret)}
	if err := s.engine.InsertCF(namespace.SecretsCF, nsCtx.InternalName, secretRecord); err != nil {
		log.Error("failed to persist collection secret: " + err.Error())
		httpkit.WriteStorageError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":    "collection created",
		"secret_key": nsCtx.Secret,
	})
}

func (s *Server) handleCollectionDelete(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	userName := mux.Vars(r)["collection"]

	if hasBackupsSuffix(userName) {
		baseInternal := nsCtx.InternalName[:len(nsCtx.InternalName)-len(backupsSuffix)]
		if exists, err := s.engine.CFExists(baseInternal); err != nil {
			httpkit.WriteStorageError(w, err)
			return
		} else if exists {
			httpkit.WriteJSON(w, http.StatusOK, map[string]any{
				"message": "refusing to drop backups collection while its base collection still exists",
			})
			return
		}
	}

	if err := s.engine.DropCF(nsCtx.InternalName); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"message": "collection dropped"})
}

func (s *Server) handleCollectionRange(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpkit.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	keys := true
	if v := q.Get("keys"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpkit.WriteError(w, http.StatusBadRequest, "invalid keys")
			return
		}
		keys = b
	}

	opts := storage.RangeOptions{
		From:  q.Get("from"),
		To:    q.Get("to"),
		Limit: limit,
		Dir:   direction(q.Get("order")),
	}
	s.writeRange(w, nsCtx.InternalName, opts, keys)
}

func (s *Server) handleCollectionQuery(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)

	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if body.Query != "" {
		if _, err := jsonpath.Parse(body.Query); err != nil {
			httpkit.WriteError(w, http.StatusBadRequest, "invalid JSONPath expression")
			return
		}
		s.writeQuery(w, nsCtx.InternalName, body.Query, body.wantKeys())
		return
	}

	opts := storage.RangeOptions{
		From:  body.From,
		To:    body.To,
		Limit: body.Limit,
		Dir:   direction(body.Order),
	}
	s.writeRange(w, nsCtx.InternalName, opts, body.wantKeys())
}

func (s *Server) writeRange(w http.ResponseWriter, internalName string, opts storage.RangeOptions, keys bool) {
	if keys {
		pairs, err := s.engine.GetRangeCFWithKeys(internalName, opts)
		if err != nil {
			httpkit.WriteStorageError(w, err)
			return
		}
		httpkit.WriteJSON(w, http.StatusOK, pairs)
		return
	}
	var values []any
	if err := s.engine.GetRangeCF(internalName, opts, &values); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, values)
}

func (s *Server) writeQuery(w http.ResponseWriter, internalName, expr string, keys bool) {
	if keys {
		pairs, err := s.engine.QueryCFWithKeys(internalName, expr)
		if err != nil {
			httpkit.WriteStorageError(w, err)
			return
		}
		httpkit.WriteJSON(w, http.StatusOK, pairs)
		return
	}
	var values []any
	if err := s.engine.QueryCF(internalName, expr, &values); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, values)
}

type batchItem struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)

	var items []batchItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	pairs := make([]storage.KeyValue, len(items))
	for i, it := range items {
		pairs[i] = storage.KeyValue{Key: it.Key, Value: it.Value}
	}
	if err := s.engine.BatchInsertCF(nsCtx.InternalName, pairs); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}

	for _, it := range items {
		s.publishMutation(nsCtx.InternalName, storage.KeyValue{Key: it.Key, Value: it.Value}, "create")
	}
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"inserted": len(items)})
}
