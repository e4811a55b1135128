package api

import (
	"fmt"
	"net/http"
)

// handleLiveStream is the server-sent events alternative to the websocket.
// Each envelope is one "data:" line.
func (r *Router) handleLiveStream(w http.ResponseWriter, req *http.Request) {
	token := req.PathValue("token")
	sess, err := r.live.Lookup(req.Context(), token)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, req, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}
	hello, err := connectedEnvelope(sess)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}

	sub := r.hub.Subscribe(token)
	defer r.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "data: %s\n\n", hello)
	flusher.Flush()

	for {
		select {
		case <-req.Context().Done():
			return
		case message, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", message); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
