package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/duckdb"
	"github.com/tinytelemetry/loglens/internal/ingest"
	"github.com/tinytelemetry/loglens/internal/metrics"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/recommend"
	"github.com/tinytelemetry/loglens/internal/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testLines = []string{
	`{"type":"api_request","path":"/x","duration_ms":200,"status_code":200}`,
	`{"type":"api_request","path":"/x","duration_ms":1200,"status_code":500}`,
	`{"level":"error","message":"boom","path":"/x"}`,
}

func buildFixture(t *testing.T) (*model.AnalysisReport, *duckdb.Store) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	agg := analyzer.New()
	var records []*model.LogRecord
	for i, line := range testLines {
		r, err := ingest.ParseRecord(line)
		if err != nil {
			t.Fatalf("ParseRecord: %v", err)
		}
		r.LineNo = i + 1
		r.Source = "file"
		agg.Ingest(r)
		records = append(records, r)
	}
	if err := store.InsertRecordBatch(records); err != nil {
		t.Fatalf("InsertRecordBatch: %v", err)
	}

	snap := agg.Snapshot()
	rep := report.Build(snap, recommend.Evaluate(snap, recommend.DefaultThresholds()), report.Meta{Source: "app.log"})
	return rep, store
}

func newTestRouter(t *testing.T, withStore bool) (*model.AnalysisReport, *gin.Engine) {
	t.Helper()
	rep, store := buildFixture(t)
	opts := Options{Report: rep, Metrics: metrics.New().Handler()}
	if withStore {
		opts.Store = store
	}
	return rep, NewServer("", opts).Router()
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	rep, r := newTestRouter(t, true)

	w := do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["run_id"] != rep.RunID {
		t.Errorf("run_id = %v, want %s", body["run_id"], rep.RunID)
	}
	if body["mirrored_records"] != float64(3) {
		t.Errorf("mirrored_records = %v, want 3", body["mirrored_records"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, r := newTestRouter(t, false)

	w := do(r, http.MethodPost, "/api/health", "")
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	rep, r := newTestRouter(t, false)

	w := do(r, http.MethodGet, "/api/report", "")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d", w.Code)
	}

	var got model.AnalysisReport
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if got.RunID != rep.RunID || got.TotalLogs != 3 || got.TotalErrors != 1 || got.SlowRequests != 1 {
		t.Errorf("report = %+v", got)
	}
	if got.APIStats["/x"].StatusCodes[500] != 1 {
		t.Errorf("api_stats[/x] = %+v", got.APIStats["/x"])
	}
}

func TestReportEndpoint_NoReport(t *testing.T) {
	r := NewServer("", Options{}).Router()
	w := do(r, http.MethodGet, "/api/report", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	_, r := newTestRouter(t, false)

	w := do(r, http.MethodGet, "/api/recommendations", "")
	var body struct {
		Recommendations []model.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
}

func TestQueryEndpoint_ValidSelect(t *testing.T) {
	_, r := newTestRouter(t, true)

	w := do(r, http.MethodPost, "/api/query", `{"sql": "SELECT COUNT(*) AS cnt FROM api_requests"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var body struct {
		Rows     []map[string]interface{} `json:"rows"`
		RowCount int                      `json:"row_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.RowCount != 1 || fmt.Sprint(body.Rows[0]["cnt"]) != "2" {
		t.Errorf("rows = %v", body.Rows)
	}
}

func TestQueryEndpoint_ValidWith(t *testing.T) {
	_, r := newTestRouter(t, true)

	w := do(r, http.MethodPost, "/api/query", `{"sql": "WITH c AS (SELECT COUNT(*) AS cnt FROM records) SELECT cnt FROM c"}`)
	if w.Code != http.StatusOK {
		t.Errorf("query WITH status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestQueryEndpoint_RejectsWrites(t *testing.T) {
	_, r := newTestRouter(t, true)

	for _, sql := range []string{
		"INSERT INTO records (line_no, source, severity, raw_line) VALUES (1, 'x', 'INFO', '{}')",
		"DROP TABLE records",
		"SELECT 1; DELETE FROM records",
	} {
		body, _ := json.Marshal(map[string]string{"sql": sql})
		w := do(r, http.MethodPost, "/api/query", string(body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q status = %d, want %d", sql, w.Code, http.StatusBadRequest)
		}
	}
}

func TestQueryEndpoint_MissingSQL(t *testing.T) {
	_, r := newTestRouter(t, true)

	w := do(r, http.MethodPost, "/api/query", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQueryEndpoint_MirrorDisabled(t *testing.T) {
	_, r := newTestRouter(t, false)

	w := do(r, http.MethodPost, "/api/query", `{"sql": "SELECT 1"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	w = do(r, http.MethodGet, "/api/schema", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("schema status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	_, r := newTestRouter(t, true)

	w := do(r, http.MethodGet, "/api/schema", "")
	if w.Code != http.StatusOK {
		t.Fatalf("schema status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Tables    map[string][]map[string]string `json:"tables"`
		RowCounts map[string]int64               `json:"row_counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body.Tables["records"]; !ok {
		t.Errorf("records table missing from schema: %v", body.Tables)
	}
	if body.RowCounts["records"] != 3 {
		t.Errorf("row_counts = %v", body.RowCounts)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestRouter(t, false)

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestStartStop(t *testing.T) {
	rep, _ := buildFixture(t)
	srv := NewServer("127.0.0.1:0", Options{Report: rep})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
