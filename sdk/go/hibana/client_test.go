package hibana

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the Hibana API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty BaseURL")
	}
}

func TestAnalyzeSubmitsSource(t *testing.T) {
	analysisID := uuid.New().String()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/analyses": func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode request body: %v", err)
			}
			if body["source"] != "/logs/app-123" {
				t.Errorf("source = %q, want /logs/app-123", body["source"])
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": AnalysisSummary{
					AnalysisID: analysisID,
					Source:     "/logs/app-123",
					AppID:      "application_1700000000000_0042",
					AppName:    "etl",
					Status:     "succeeded",
					Stages:     3,
					Tasks:      120,
				},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	summary, err := c.Analyze(context.Background(), "/logs/app-123")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if summary.AnalysisID != analysisID {
		t.Errorf("AnalysisID = %q, want %q", summary.AnalysisID, analysisID)
	}
	if summary.Tasks != 120 {
		t.Errorf("Tasks = %d, want 120", summary.Tasks)
	}
}

func TestUploadStreamsRawLog(t *testing.T) {
	const logBody = `{"Event":"SparkListenerApplicationStart","App Name":"etl"}` + "\n"

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/analyses": func(w http.ResponseWriter, r *http.Request) {
			if ct := r.Header.Get("Content-Type"); ct != "application/x-ndjson" {
				t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
			}
			if got := r.URL.Query().Get("source"); got != "nightly etl" {
				t.Errorf("source query = %q, want %q", got, "nightly etl")
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != logBody {
				t.Errorf("body = %q, want %q", body, logBody)
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": AnalysisSummary{AnalysisID: uuid.New().String(), Source: "nightly etl"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	summary, err := c.Upload(context.Background(), "nightly etl", strings.NewReader(logBody))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if summary.Source != "nightly etl" {
		t.Errorf("Source = %q, want %q", summary.Source, "nightly etl")
	}
}

func TestGetDecodesResult(t *testing.T) {
	analysisID := uuid.New().String()
	skew := 6.5

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/analyses/" + analysisID: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": AnalysisDetail{
					AnalysisID: analysisID,
					Source:     "/logs/app-123",
					Result: &Result{
						App:     Application{ID: "app-1", Status: "succeeded"},
						Metrics: AppMetrics{TotalTasks: 120, DurationMs: 90_000},
						Stages: []StageMetrics{
							{Key: StageKey{ID: 2, Attempt: 0}, SkewRatio: &skew},
							{Key: StageKey{ID: 3, Attempt: 0}, SkewRatio: nil},
						},
					},
				},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	detail, err := c.Get(context.Background(), analysisID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if detail.Result.Metrics.TotalTasks != 120 {
		t.Errorf("TotalTasks = %d, want 120", detail.Result.Metrics.TotalTasks)
	}
	if got := detail.Result.Stages[0].SkewRatio; got == nil || *got != 6.5 {
		t.Errorf("stage 2 SkewRatio = %v, want 6.5", got)
	}
	if detail.Result.Stages[1].SkewRatio != nil {
		t.Error("stage 3 SkewRatio should be nil (undefined)")
	}
}

func TestGetNotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/analyses/{id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "not_found", "message": "analysis not found"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound = false for %v", err)
	}
	if !strings.Contains(err.Error(), "analysis not found") {
		t.Errorf("error message lost: %v", err)
	}
}

func TestRecommendationsSendsFilters(t *testing.T) {
	analysisID := uuid.New().String()

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/analyses/{id}/recommendations": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("category"); got != "skew" {
				t.Errorf("category = %q, want skew", got)
			}
			if got := r.URL.Query().Get("priority"); got != "high" {
				t.Errorf("priority = %q, want high", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": RecommendationsResponse{
					AnalysisID: analysisID,
					Count:      1,
					Recommendations: []Recommendation{
						{Rule: "stage-skew", Category: "skew", Priority: "high", Title: "Repartition stage 2"},
					},
				},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Recommendations(context.Background(), analysisID, "skew", "high")
	if err != nil {
		t.Fatalf("Recommendations failed: %v", err)
	}
	if resp.Count != 1 || resp.Recommendations[0].Rule != "stage-skew" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestReportReturnsHTML(t *testing.T) {
	const page = "<!DOCTYPE html><html><body>report</body></html>"

	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/analyses/{id}/report": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(page))
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	html, err := c.Report(context.Background(), uuid.New().String())
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if string(html) != page {
		t.Errorf("unexpected report body: %q", html)
	}
}

func TestDeleteHandlesNoContent(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"DELETE /v1/analyses/{id}": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.Delete(context.Background(), uuid.New().String()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/analyses": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"code": "rate_limited", "message": "too many requests"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Analyze(context.Background(), "/logs/app-123")
	if !IsRateLimited(err) {
		t.Errorf("IsRateLimited = false for %v", err)
	}
}

func TestListAndHistory(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/analyses": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "5" {
				t.Errorf("limit = %q, want 5", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": ListResponse{
					Analyses: []AnalysisSummary{{AnalysisID: "a"}, {AnalysisID: "b"}},
					Count:    2,
				},
			})
		},
		"GET /v1/history": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HistoryResponse{
					Records: []HistoryRecord{{ID: "a", AppName: "etl"}},
					Count:   1,
				},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	list, err := c.List(context.Background(), 5)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Count != 2 {
		t.Errorf("Count = %d, want 2", list.Count)
	}

	hist, err := c.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if hist.Count != 1 || hist.Records[0].AppName != "etl" {
		t.Errorf("unexpected history: %+v", hist)
	}
}

func TestHealth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HealthResponse{Status: "ok", Version: "test"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q, want ok", health.Status)
	}
}
