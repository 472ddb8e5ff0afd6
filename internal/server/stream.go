// internal/server/stream.go
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/types"
)

const progressBuffer = 64

// stream submits the event and hands every record to emit: progress
// records as stages finish, then exactly one result record. A run that
// cannot be queued still gets a result record carrying the error. It
// returns when the result has been emitted, emit fails, or ctx is done.
func (s *Server) stream(ctx context.Context, event *types.InboundEvent, emit func(types.Record) error) error {
	records := make(chan types.Record, progressBuffer)
	done := make(chan string, 1)

	_, err := s.gateway.HandleInbound(ctx, event,
		gateway.WithOnProgress(func(rec types.Record) {
			select {
			case records <- rec:
			case <-ctx.Done():
			}
		}),
		gateway.WithOnComplete(func(resp string) {
			done <- resp
		}),
	)
	if err != nil {
		if emitErr := emit(types.Record{Type: types.RecordResult, Text: "Error: " + err.Error()}); emitErr != nil {
			return emitErr
		}
		return err
	}

	for {
		select {
		case rec := <-records:
			if err := emit(rec); err != nil {
				return err
			}
		case resp := <-done:
			// Progress is reported before completion, so anything still
			// buffered precedes the result.
		drain:
			for {
				select {
				case rec := <-records:
					if err := emit(rec); err != nil {
						return err
					}
				default:
					break drain
				}
			}
			return emit(types.Record{Type: types.RecordResult, Text: resp})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if !req.valid() {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	err := s.stream(r.Context(), req.inbound("http"), func(rec types.Record) error {
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		slog.Warn("chat stream ended early", "error", err)
	}
}

const wsWriteWait = 10 * time.Second

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		slog.Warn("websocket read request failed", "error", err)
		return
	}
	if !req.valid() {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "message is required"))
		return
	}

	err = s.stream(r.Context(), req.inbound("websocket"), func(rec types.Record) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(rec)
	})
	if err != nil {
		slog.Warn("websocket stream ended early", "error", err)
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}
