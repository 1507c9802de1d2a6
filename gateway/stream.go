package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"sktvault/core/events"
	"sktvault/integrations/exports"
	"sktvault/integrations/indexer"
)

const wsWriteTimeout = 10 * time.Second

func (s *Server) eventFilter(r *http.Request) (indexer.Filter, error) {
	q := r.URL.Query()
	f := indexer.Filter{
		Type:   strings.TrimSpace(q.Get("type")),
		Module: strings.TrimSpace(q.Get("module")),
		Actor:  strings.TrimSpace(q.Get("actor")),
		Vault:  strings.TrimSpace(q.Get("vault")),
		Raffle: strings.TrimSpace(q.Get("raffle")),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return f, badRequest("after must be a sequence number")
		}
		f.AfterSequence = after
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

func (s *Server) queryIndex(w http.ResponseWriter, r *http.Request) ([]indexer.EventRecord, bool) {
	if s.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorEnvelope{Error: apiError{Name: "Unavailable", Message: "event index not configured"}})
		return nil, false
	}
	f, err := s.eventFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	records, err := s.index.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return records, true
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records, ok := s.queryIndex(w, r)
	if !ok {
		return
	}
	out := make([]eventView, 0, len(records))
	for i := range records {
		evt, err := records[i].Event()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, eventView{Sequence: records[i].Sequence, Type: evt.Type, Attributes: evt.Attributes})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := exports.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		format = exports.FormatCSV
	}
	var contentType string
	switch format {
	case exports.FormatCSV:
		contentType = "text/csv"
	case exports.FormatJSONL:
		contentType = "application/x-ndjson"
	case exports.FormatParquet:
		contentType = "application/vnd.apache.parquet"
	default:
		s.writeError(w, r, badRequest("unknown export format %q", format))
		return
	}
	records, ok := s.queryIndex(w, r)
	if !ok {
		return
	}
	data, checksum, err := exports.Encode(format, records)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "events."+string(format)))
	w.Header().Set("X-Checksum", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleStream pushes committed events over a websocket. cursor resumes
// after a previously seen sequence; type filters by prefix.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	broker := s.backend.Events()
	if broker == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, broker, cursor, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, broker *events.Broker, cursor, prefix string) error {
	updates, cancel, backlog := broker.Subscribe(ctx, cursor)
	defer cancel()

	for _, rec := range backlog {
		if err := writeRecord(ctx, conn, rec, prefix); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeRecord(ctx, conn, rec, prefix); err != nil {
				return err
			}
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec events.Record, prefix string) error {
	if prefix != "" && !strings.HasPrefix(rec.Event.Type, prefix) {
		return nil
	}
	data, err := json.Marshal(eventView{
		Sequence:   rec.Sequence,
		Cursor:     rec.Cursor,
		Type:       rec.Event.Type,
		Attributes: rec.Event.Attributes,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
