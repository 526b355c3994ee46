package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/loglens/internal/analyzer"
	"github.com/tinytelemetry/loglens/internal/duckdb"
	"github.com/tinytelemetry/loglens/internal/httpserver"
	"github.com/tinytelemetry/loglens/internal/logsource"
	"github.com/tinytelemetry/loglens/internal/metrics"
	"github.com/tinytelemetry/loglens/internal/model"
	"github.com/tinytelemetry/loglens/internal/pipeline"
	"github.com/tinytelemetry/loglens/internal/recommend"
	"github.com/tinytelemetry/loglens/internal/report"
)

type e2eStack struct {
	store    *duckdb.Store
	counters *metrics.Counters
	result   *pipeline.Result
	report   *model.AnalysisReport
	api      *httpserver.Server
	apiAddr  string
}

// runE2EStack runs the full in-process flow: read, aggregate, mirror,
// report, and serve.
func runE2EStack(t *testing.T, lines []string) *e2eStack {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "loglens-e2e.duckdb")
	store, err := duckdb.NewStore(dbPath, 5*time.Second)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	insert := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      512,
		FlushInterval:  20 * time.Millisecond,
		FlushQueueSize: 128,
	})
	counters := metrics.New()

	input := strings.Join(lines, "\n") + "\n"
	src := logsource.NewReaderSource(context.Background(), "e2e", strings.NewReader(input))
	res, err := pipeline.Run(context.Background(), src, pipeline.Options{
		Aggregator: analyzer.Config{SlowThresholdMS: model.DefaultSlowThresholdMS},
		Observer:   counters,
		Buckets:    counters,
		Mirror:     insert,
	})
	if err != nil {
		t.Fatalf("pipeline.Run: %v", err)
	}
	insert.Stop()

	recs := recommend.Evaluate(res.Snapshot, recommend.DefaultThresholds())
	rep := report.Build(res.Snapshot, recs, report.Meta{
		Source:       res.Source,
		LinesRead:    res.Counts.LinesRead,
		LinesSkipped: res.Counts.Skipped,
	})

	api := httpserver.NewServer("127.0.0.1:0", httpserver.Options{
		Report:  rep,
		Store:   store,
		Metrics: counters.Handler(),
	})
	if err := api.Start(); err != nil {
		t.Fatalf("http Start: %v", err)
	}

	stack := &e2eStack{
		store:    store,
		counters: counters,
		result:   res,
		report:   rep,
		api:      api,
		apiAddr:  api.Addr(),
	}

	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		resp, err := http.Get("http://" + stack.apiAddr + "/api/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "api health endpoint did not become ready")

	t.Cleanup(func() {
		_ = stack.api.Stop()
		_ = stack.store.Close()
	})
	return stack
}

func waitEventually(t *testing.T, timeout, interval time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("eventually timeout: %s", msg)
		}
		time.Sleep(interval)
	}
}

type sqlResponse struct {
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
	Error    string                   `json:"error"`
}

func postSQL(addr, sql string) (int, sqlResponse, error) {
	payload, err := json.Marshal(map[string]string{"sql": sql})
	if err != nil {
		return 0, sqlResponse{}, err
	}
	resp, err := http.Post("http://"+addr+"/api/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, sqlResponse{}, err
	}
	defer resp.Body.Close()

	var out sqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, sqlResponse{}, err
	}
	return resp.StatusCode, out, nil
}

func queryCount(t *testing.T, addr, sql string) int64 {
	t.Helper()
	status, resp, err := postSQL(addr, sql)
	if err != nil {
		t.Fatalf("postSQL(%q): %v", sql, err)
	}
	if status != http.StatusOK {
		t.Fatalf("postSQL(%q) status=%d error=%q", sql, status, resp.Error)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("postSQL(%q) returned %d rows", sql, len(resp.Rows))
	}
	n, ok := resp.Rows[0]["n"].(float64)
	if !ok {
		t.Fatalf("postSQL(%q) n=%T(%v)", sql, resp.Rows[0]["n"], resp.Rows[0]["n"])
	}
	return int64(n)
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func generateMixedLines(n int) []string {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch i % 5 {
		case 0:
			lines = append(lines, fmt.Sprintf(`{"type":"api_request","path":"/api/items","duration_ms":%d,"status_code":200,"user_id":"u%d"}`, 100+i%1500, i%7))
		case 1:
			lines = append(lines, fmt.Sprintf(`{"type":"database","model":"Item","operation":"find","duration_ms":%d,"success":%t}`, 5+i%20, i%10 != 1))
		case 2:
			lines = append(lines, fmt.Sprintf(`{"level":"ERROR","message":"item %d failed","path":"/api/items"}`, i%3))
		case 3:
			lines = append(lines, fmt.Sprintf(`{"level":"INFO","message":"tick %d"}`, i))
		default:
			lines = append(lines, "garbage line")
		}
	}
	return lines
}

func TestE2E_Pipeline_FileToReportAndHTTP(t *testing.T) {
	stack := runE2EStack(t, []string{
		`{"type":"api_request","path":"/a","duration_ms":200,"status_code":200}`,
		`{"type":"api_request","path":"/a","duration_ms":1200,"status_code":500}`,
		`{"level":"ERROR","message":"boom","path":"/a"}`,
	})

	rep := stack.report
	if rep.TotalLogs != 3 || rep.TotalErrors != 1 || rep.SlowRequests != 1 {
		t.Fatalf("unexpected totals: logs=%d errors=%d slow=%d", rep.TotalLogs, rep.TotalErrors, rep.SlowRequests)
	}
	ep, ok := rep.APIStats["/a"]
	if !ok {
		t.Fatalf("missing /a in api_stats: %+v", rep.APIStats)
	}
	if ep.Count != 2 || ep.AvgMS != 700 {
		t.Fatalf("unexpected /a stats: %+v", ep)
	}
	if ep.P95MS == nil || *ep.P95MS != 2050 {
		t.Fatalf("unexpected /a p95: %v", ep.P95MS)
	}

	// 1 error out of 3 records is 33.3%.
	var sawErrorRate bool
	for _, r := range rep.Recommendations {
		if r.Rule == model.RuleErrorRate {
			sawErrorRate = true
		}
	}
	if !sawErrorRate {
		t.Fatalf("expected error_rate recommendation: %+v", rep.Recommendations)
	}

	var served model.AnalysisReport
	if status := getJSON(t, "http://"+stack.apiAddr+"/api/report", &served); status != http.StatusOK {
		t.Fatalf("/api/report status=%d", status)
	}
	if served.RunID != rep.RunID || served.TotalLogs != 3 {
		t.Fatalf("served report mismatch: %+v", served)
	}

	if got := queryCount(t, stack.apiAddr, "SELECT COUNT(*) AS n FROM records"); got != 3 {
		t.Fatalf("mirrored records=%d, want 3", got)
	}
	if got := queryCount(t, stack.apiAddr, "SELECT COUNT(*) AS n FROM api_requests WHERE duration_ms > 1000"); got != 1 {
		t.Fatalf("slow api_requests=%d, want 1", got)
	}
	if got := queryCount(t, stack.apiAddr, "SELECT COUNT(*) AS n FROM error_records"); got != int64(rep.TotalErrors) {
		t.Fatalf("error_records=%d, want %d", got, rep.TotalErrors)
	}

	status, resp, err := postSQL(stack.apiAddr, "DELETE FROM records")
	if err != nil {
		t.Fatalf("postSQL delete: %v", err)
	}
	if status != http.StatusBadRequest || resp.Error == "" {
		t.Fatalf("write query should be rejected, status=%d resp=%+v", status, resp)
	}

	dir := t.TempDir()
	w := &report.Writer{Dir: dir, Format: report.FormatJSON}
	path, err := w.Write(rep, time.Now())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var onDisk map[string]interface{}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	for _, key := range []string{"timestamp", "total_logs", "total_errors", "slow_requests", "api_stats", "recommendations"} {
		if _, ok := onDisk[key]; !ok {
			t.Fatalf("report missing key %q", key)
		}
	}
}

func TestE2E_BurstIngest_NoLoss(t *testing.T) {
	const total = 5000
	stack := runE2EStack(t, generateMixedLines(total))

	counts := stack.result.Counts
	if counts.LinesRead != total {
		t.Fatalf("lines read=%d, want %d", counts.LinesRead, total)
	}
	if counts.Parsed+counts.Skipped != counts.LinesRead {
		t.Fatalf("parsed+skipped=%d, want %d", counts.Parsed+counts.Skipped, counts.LinesRead)
	}
	if counts.Skipped != total/5 {
		t.Fatalf("skipped=%d, want %d", counts.Skipped, total/5)
	}
	if stack.report.TotalLogs != counts.Parsed {
		t.Fatalf("report total=%d, parsed=%d", stack.report.TotalLogs, counts.Parsed)
	}

	wantSlow := 0
	for i := 0; i < total; i += 5 {
		if 100+i%1500 > 1000 {
			wantSlow++
		}
	}
	if stack.report.SlowRequests != wantSlow {
		t.Fatalf("slow requests=%d, want %d", stack.report.SlowRequests, wantSlow)
	}
	if ep := stack.report.APIStats["/api/items"]; ep.AvgMS <= 100 || ep.P95MS == nil || *ep.P95MS <= ep.AvgMS {
		t.Fatalf("unexpected /api/items latency: %+v", ep)
	}
	if got := stack.report.ErrorPatterns; len(got) != 1 || got[0].Template != "item <*> failed" || got[0].Count != stack.report.TotalErrors {
		t.Fatalf("error patterns=%+v, want one template covering %d errors", got, stack.report.TotalErrors)
	}

	mirrored := queryCount(t, stack.apiAddr, "SELECT COUNT(*) AS n FROM records")
	if mirrored != int64(counts.Parsed) {
		t.Fatalf("mirrored=%d, want %d", mirrored, counts.Parsed)
	}
	dbOps := queryCount(t, stack.apiAddr, "SELECT COUNT(*) AS n FROM db_operations")
	if got := stack.report.DBStats["Item.find"].Count; int64(got) != dbOps {
		t.Fatalf("db_stats count=%d, mirrored db_operations=%d", got, dbOps)
	}
}

func TestE2E_MetricsExposed(t *testing.T) {
	stack := runE2EStack(t, generateMixedLines(50))

	resp, err := http.Get("http://" + stack.apiAddr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`loglens_lines_read_total{source="e2e"} 50`,
		`loglens_lines_skipped_total{reason="malformed",source="e2e"} 10`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
