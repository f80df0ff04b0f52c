package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	method      string
	path        string
	query       string
	body        string
	auth        string
	contentType string

	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.auth = r.Header.Get("Authorization")
	h.contentType = r.Header.Get("Content-Type")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

func newTestClient(h http.Handler, token string) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	return New(srv.URL, token), srv
}

func TestIngest(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusAccepted,
		responseBody: `{"raw_event_id":"raw-abc123","job_id":"j-1"}`,
	}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	resp, err := c.Ingest(context.Background(), "BANK", []byte(`{"user_id":"u-1"}`))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/ingest/BANK" {
		t.Errorf("request = %s %s, want POST /v1/ingest/BANK", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("content type = %q", h.contentType)
	}
	if h.body != `{"user_id":"u-1"}` {
		t.Errorf("body = %q", h.body)
	}
	if resp.RawEventID != "raw-abc123" || resp.JobID != "j-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetSummarySendsToken(t *testing.T) {
	h := &testHandler{
		responseBody: `{"user_id":"u-1","balances_by_currency":{"EUR":150000},"asset_positions":{},"valuation":"FULL"}`,
	}
	c, srv := newTestClient(h, "sekrit")
	defer srv.Close()

	summary, err := c.GetSummary(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if h.auth != "Bearer sekrit" {
		t.Errorf("auth header = %q", h.auth)
	}
	if h.path != "/v1/users/u-1/summary" {
		t.Errorf("path = %q", h.path)
	}
	if summary.BalancesByCurrency["EUR"] != 150000 {
		t.Errorf("EUR balance = %d", summary.BalancesByCurrency["EUR"])
	}
}

func TestGetTimelineQuery(t *testing.T) {
	h := &testHandler{responseBody: `{"entries":[],"next_cursor":"abc"}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	resp, err := c.GetTimeline(context.Background(), "u-1", 25, "cur")
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if h.query != "cursor=cur&limit=25" {
		t.Errorf("query = %q", h.query)
	}
	if resp.NextCursor != "abc" {
		t.Errorf("next cursor = %q", resp.NextCursor)
	}
}

func TestListJobsAndReset(t *testing.T) {
	h := &testHandler{responseBody: `[{"id":"j-1","type":"RECONCILE_EVENT","status":"FAILED","attempts":3}]`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	jobs, err := c.ListJobs(context.Background(), "FAILED", "", 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if h.query != "limit=10&status=FAILED" {
		t.Errorf("query = %q", h.query)
	}
	if len(jobs) != 1 || jobs[0].ID != "j-1" {
		t.Errorf("jobs = %+v", jobs)
	}

	h.responseBody = `{"reset":2}`
	n, err := c.ResetFailedJobs(context.Background())
	if err != nil {
		t.Fatalf("ResetFailedJobs: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/jobs/reset-failed" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if n != 2 {
		t.Errorf("reset = %d, want 2", n)
	}
}

func TestAPIError(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusBadRequest,
		responseBody: `{"error":"unknown source bogus"}`,
	}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	_, err := c.Ingest(context.Background(), "bogus", []byte(`{}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "unknown source bogus" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHealth(t *testing.T) {
	h := &testHandler{responseBody: `{"status":"ok"}`}
	c, srv := newTestClient(h, "")
	defer srv.Close()

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status != "ok" {
		t.Errorf("status = %q", status)
	}
}
