package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/kvdoc/pkg/log"
	"github.com/cuemby/kvdoc/pkg/namespace"
)

// handleSubscribe opens a server-sent-events stream over the collection's
// broadcaster. The first frame announces the connection; every mutation
// published afterward is forwarded as its own frame until the client
// disconnects or the broadcaster reports Closed.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	nsCtx, _ := namespace.FromRequest(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	messages, unsubscribe := s.registry.For(nsCtx.InternalName).Subscribe()
	defer unsubscribe()

	fmt.Fprintf(w, "data: %s\n\n", mustJSON(map[string]any{
		"type":       "connected",
		"collection": nsCtx.UserName,
	}))
	flusher.Flush()

	logger := log.WithCollection(nsCtx.UserName)
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, open := <-messages:
			if !open {
				fmt.Fprintf(w, "data: %s\n\n", mustJSON(map[string]any{"type": "closed"}))
				flusher.Flush()
				return
			}
			if msg.Lagged {
				logger.Warn().Msg("subscriber lagged, events were skipped")
				continue
			}
			frame := frameEvent(*msg.Event)
			fmt.Fprintf(w, "data: %s\n\n", mustJSON(frame))
			flusher.Flush()
		}
	}
}

// frameEvent shapes a mutation event for SSE delivery, injecting serverTime
// into object-typed values per the documented framing contract.
func frameEvent(event any) map[string]any {
	data, _ := json.Marshal(event)
	var frame map[string]any
	_ = json.Unmarshal(data, &frame)

	if value, ok := frame["value"].(map[string]any); ok {
		value["serverTime"] = time.Now().UnixMilli()
		frame["value"] = value
	}
	return frame
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}
