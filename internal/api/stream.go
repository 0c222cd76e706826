/**
 * @description
 * This file contains the live ledger stream endpoint. It bridges the
 * workflow's ledger subscription onto Server-Sent Events so a client can hold
 * one long-lived connection and receive the full transaction list on every
 * change. The subscription is closed when the client disconnects, so no
 * listener outlives its viewing session.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app: the ledger subscription handle.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// StreamLedgerHandler streams the actor's ledger over SSE. Each event carries
// the complete transaction list, never a diff.
func (h *WorkflowHandlers) StreamLedgerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "No authenticated user")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	sub, err := h.service.WatchLedger(r.Context(), actor)
	if err != nil {
		h.mapWorkflowError(w, "stream_ledger", err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case list, open := <-sub.Updates():
			if !open {
				if err := sub.Err(); err != nil {
					log.Printf("level=warn component=api endpoint=stream_ledger msg=\"subscription ended\" user_id=%s err=%v", actor.ID, err)
				}
				return
			}
			payload, err := json.Marshal(list)
			if err != nil {
				log.Printf("level=warn component=api endpoint=stream_ledger msg=\"encode failed\" user_id=%s err=%v", actor.ID, err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: transactions\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
