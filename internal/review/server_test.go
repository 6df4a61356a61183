package review_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shpitdev/unusual-requirements/internal/extract"
	"github.com/shpitdev/unusual-requirements/internal/pipeline"
	"github.com/shpitdev/unusual-requirements/internal/review"
)

func newTestServer(t *testing.T, extractor extract.Extractor) *httptest.Server {
	t.Helper()
	srv := review.New(pipeline.New(extractor, pipeline.Options{}), log.New(io.Discard, "", 0))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadBatch(t *testing.T, ts *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/batches", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload status: %d", resp.StatusCode)
	}
	var accepted struct {
		BatchID string `json:"batch_id"`
		Records int    `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if accepted.BatchID == "" {
		t.Fatalf("missing batch_id")
	}
	return accepted.BatchID
}

func waitDone(t *testing.T, ts *httptest.Server, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/api/batches/" + id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		var status struct {
			Processed int  `json:"processed"`
			Total     int  `json:"total"`
			Done      bool `json:"done"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch %s never finished", id)
}

func TestServer_UploadStreamExport(t *testing.T) {
	category := "локация"
	extractor := extract.ExtractFunc(func(_ context.Context, text string) (extract.Extraction, error) {
		if text == "текст" {
			return extract.Extraction{}, errors.New("boom")
		}
		return extract.Extraction{Requirements: []extract.UnusualRequirement{{
			Requirement: "отель у моря",
			Category:    &category,
		}}}, nil
	})
	ts := newTestServer(t, extractor)

	id := uploadBatch(t, ts, `[
  {"number": 1, "Comment": "Хотим отель у моря"},
  {"number": 2},
  {"number": 3, "Comment": "<p>текст</p>"}
]`)

	// Stream all outcomes over the websocket until the server closes.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/batches/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	var streamed []map[string]any
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("stream read: %v", err)
			}
			break
		}
		var o map[string]any
		if err := json.Unmarshal(msg, &o); err != nil {
			t.Fatalf("stream payload not JSON: %v (%q)", err, msg)
		}
		streamed = append(streamed, o)
	}

	if len(streamed) != 3 {
		t.Fatalf("expected 3 streamed outcomes, got %d", len(streamed))
	}
	if streamed[0]["number"] != float64(1) || streamed[0]["original_comment"] != "Хотим отель у моря" {
		t.Fatalf("unexpected streamed[0]: %#v", streamed[0])
	}
	if reqs, ok := streamed[1]["unusual_requirements"].([]any); !ok || len(reqs) != 0 {
		t.Fatalf("unexpected streamed[1]: %#v", streamed[1])
	}
	if streamed[2]["error"] != "boom" {
		t.Fatalf("unexpected streamed[2]: %#v", streamed[2])
	}

	waitDone(t, ts, id)

	// Export matches the streamed outcomes and preserves text literally.
	expResp, err := http.Get(ts.URL + "/api/batches/" + id + "/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer func() { _ = expResp.Body.Close() }()
	if expResp.StatusCode != http.StatusOK {
		t.Fatalf("export status: %d", expResp.StatusCode)
	}
	if cd := expResp.Header.Get("Content-Disposition"); !strings.Contains(cd, "unusual_requirements.json") {
		t.Fatalf("unexpected content disposition: %q", cd)
	}
	body, err := io.ReadAll(expResp.Body)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if strings.Contains(string(body), `\u`) {
		t.Fatalf("export contains escaped characters:\n%s", body)
	}
	var exported []map[string]any
	if err := json.Unmarshal(body, &exported); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(exported) != 3 {
		t.Fatalf("expected 3 exported outcomes, got %d", len(exported))
	}
}

func TestServer_MalformedUpload(t *testing.T) {
	ts := newTestServer(t, extract.Stub{})
	resp, err := http.Post(ts.URL+"/api/batches", "application/json", strings.NewReader(`{"not": "a list"}`))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServer_UnknownBatch(t *testing.T) {
	ts := newTestServer(t, extract.Stub{})
	for _, path := range []string{"/api/batches/nope", "/api/batches/nope/export"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_ExportBeforeDoneConflicts(t *testing.T) {
	release := make(chan struct{})
	extractor := extract.ExtractFunc(func(_ context.Context, _ string) (extract.Extraction, error) {
		<-release
		return extract.Extraction{Requirements: []extract.UnusualRequirement{}}, nil
	})
	ts := newTestServer(t, extractor)

	id := uploadBatch(t, ts, `[{"number": 1, "Comment": "x"}]`)

	resp, err := http.Get(ts.URL + "/api/batches/" + id + "/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while processing, got %d", resp.StatusCode)
	}

	close(release)
	waitDone(t, ts, id)
}
