package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/kvdoc/pkg/httpkit"
	"github.com/cuemby/kvdoc/pkg/namespace"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/cuemby/kvdoc/pkg/types"
	"github.com/gorilla/mux"
)

func (s *Server) handleKeyHead(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	key := mux.Vars(r)["key"]

	var out any
	if err := s.engine.GetCF(nsCtx.InternalName, key, &out); err != nil {
		if se, ok := err.(*storage.Error); ok && (se.Kind == storage.KeyNotFound || se.Kind == storage.InvalidColumnFamily) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		httpkit.WriteStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleKeyGet(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	key := mux.Vars(r)["key"]

	var out any
	if err := s.engine.GetCF(nsCtx.InternalName, key, &out); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleKeyPut(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	key := mux.Vars(r)["key"]

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		httpkit.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	existed, err := s.keyExists(nsCtx.InternalName, key)
	if err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	if err := s.engine.InsertCF(nsCtx.InternalName, key, value); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}

	op := types.OpCreate
	if existed {
		op = types.OpUpdate
	}
	s.publishMutation(nsCtx.InternalName, storage.KeyValue{Key: key, Value: value}, op)
	httpkit.WriteJSON(w, http.StatusCreated, value)
}

func (s *Server) handleKeyDelete(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)
	key := mux.Vars(r)["key"]

	if err := s.engine.DeleteCF(nsCtx.InternalName, key); err != nil {
		httpkit.WriteStorageError(w, err)
		return
	}
	s.publishMutation(nsCtx.InternalName, storage.KeyValue{Key: key, Value: nil}, types.OpDelete)
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
}

func (s *Server) keyExists(internalName, key string) (bool, error) {
	var out any
	err := s.engine.GetCF(internalName, key, &out)
	if err == nil {
		return true, nil
	}
	if se, ok := err.(*storage.Error); ok && se.Kind == storage.KeyNotFound {
		return false, nil
	}
	if se, ok := err.(*storage.Error); ok && se.Kind == storage.InvalidColumnFamily {
		return false, se
	}
	return false, err
}
