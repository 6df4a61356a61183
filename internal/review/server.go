// Package review exposes the batch pipeline over HTTP for interactive use:
// upload a batch, watch outcomes stream in as they are produced, download
// the export once the batch completes.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shpitdev/unusual-requirements/internal/pipeline"
	"github.com/shpitdev/unusual-requirements/internal/util"
)

// Server runs one sequential pipeline per uploaded batch and keeps outcomes
// in memory for streaming and export. State lives for the process lifetime;
// there is no persistence layer.
type Server struct {
	pipeline *pipeline.Pipeline
	logger   *log.Logger

	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	mu   sync.Mutex
	cond *sync.Cond

	total    int
	outcomes []pipeline.Outcome
	done     bool
}

func newBatch(total int) *batch {
	b := &batch{total: total}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *batch) append(o pipeline.Outcome) {
	b.mu.Lock()
	b.outcomes = append(b.outcomes, o)
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *batch) finish() {
	b.mu.Lock()
	b.done = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// next blocks until outcome i exists or the batch is done. The second return
// is false when no more outcomes will arrive.
func (b *batch) next(i int) (pipeline.Outcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i >= len(b.outcomes) && !b.done {
		b.cond.Wait()
	}
	if i >= len(b.outcomes) {
		return pipeline.Outcome{}, false
	}
	return b.outcomes[i], true
}

func (b *batch) snapshot() (outcomes []pipeline.Outcome, total int, done bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	outcomes = make([]pipeline.Outcome, len(b.outcomes))
	copy(outcomes, b.outcomes)
	return outcomes, b.total, b.done
}

func New(p *pipeline.Pipeline, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Server{
		pipeline: p,
		logger:   logger,
		batches:  make(map[string]*batch),
	}
}

// Handler returns the HTTP API:
//
//	POST /api/batches                 upload a JSON batch, start processing
//	GET  /api/batches/{id}            processing status
//	GET  /api/batches/{id}/stream     WebSocket: outcomes as they arrive
//	GET  /api/batches/{id}/export     download the outcome JSON (when done)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batches", s.handleUpload)
	mux.HandleFunc("GET /api/batches/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/batches/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/batches/{id}/export", s.handleExport)
	return mux
}

func (s *Server) lookup(id string) *batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[id]
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	records, err := pipeline.ReadRecords(r.Body)
	if err != nil {
		// Malformed top-level input is the one pre-batch hard error.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	considered := len(records)
	if limit := s.pipeline.MaxRecords(); considered > limit {
		considered = limit
	}

	id := uuid.NewString()
	b := newBatch(considered)
	s.mu.Lock()
	s.batches[id] = b
	s.mu.Unlock()

	s.logger.Printf("batch=%s accepted: records=%d considered=%d", id, len(records), considered)

	go func() {
		for outcome := range s.pipeline.Run(context.Background(), records) {
			b.append(outcome)
		}
		b.finish()
		s.logger.Printf("batch=%s complete", id)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": id,
		"records":  considered,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	b := s.lookup(r.PathValue("id"))
	if b == nil {
		writeError(w, http.StatusNotFound, "unknown batch")
		return
	}
	outcomes, total, done := b.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": len(outcomes),
		"total":     total,
		"done":      done,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b := s.lookup(id)
	if b == nil {
		writeError(w, http.StatusNotFound, "unknown batch")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("batch=%s stream upgrade failed: %s", id, util.RedactSecrets(err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	// Replay what already exists, then follow live until the batch is done.
	for i := 0; ; i++ {
		outcome, ok := b.next(i)
		if !ok {
			break
		}
		payload, err := encodeOutcome(outcome)
		if err != nil {
			s.logger.Printf("batch=%s stream encode failed: %v", id, err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch complete"),
		time.Now().Add(5*time.Second),
	)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	b := s.lookup(r.PathValue("id"))
	if b == nil {
		writeError(w, http.StatusNotFound, "unknown batch")
		return
	}
	outcomes, _, done := b.snapshot()
	if !done {
		writeError(w, http.StatusConflict, "batch still processing")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="unusual_requirements.json"`)
	if err := pipeline.WriteOutcomes(w, outcomes); err != nil {
		s.logger.Printf("export write failed: %v", err)
	}
}

// encodeOutcome keeps the wire payload byte-identical to the export shape:
// no HTML escaping, non-ASCII literal.
func encodeOutcome(o pipeline.Outcome) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": util.RedactSecrets(msg)})
}
