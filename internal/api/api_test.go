package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xuri/excelize/v2"
	"golang.org/x/time/rate"

	"github.com/celerix-dev/celerix-leads/internal/engine"
	"github.com/celerix-dev/celerix-leads/internal/export"
	"github.com/celerix-dev/celerix-leads/internal/logger"
	"github.com/celerix-dev/celerix-leads/internal/metrics"
	"github.com/celerix-dev/celerix-leads/internal/report"
	"github.com/celerix-dev/celerix-leads/pkg/schema"
	"github.com/celerix-dev/celerix-leads/pkg/sdk"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newHandler(store sdk.LeadStore) *Handler {
	return &Handler{
		Store:   store,
		Log:     logger.Discard(),
		Metrics: metrics.New(),
		Export:  export.Options{Location: time.UTC},
		Now:     func() time.Time { return fixedNow },
	}
}

func setupTestRouter() (*gin.Engine, *Handler) {
	return setupTestRouterWith(engine.NewMemStore(nil, nil))
}

func setupTestRouterWith(store sdk.LeadStore) (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	h := newHandler(store)
	r := gin.New()

	r.POST("/api/webhook/lead", h.Webhook)
	r.GET("/api/leads", h.ListLeads)
	r.GET("/api/leads/stats", h.Stats)
	r.GET("/api/leads/:id", h.GetLead)
	r.GET("/api/export/excel", h.ExportExcel)
	r.GET("/api/export/csv", h.ExportCSV)
	r.GET("/healthz", h.Health)

	return r, h
}

func postLead(r http.Handler, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/api/webhook/lead", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, s sdk.LeadStore, scores ...int) []schema.Lead {
	t.Helper()
	var out []schema.Lead
	for i, score := range scores {
		l, err := s.Create(context.Background(), schema.LeadInput{
			Name: "lead" + string(rune('A'+i)), Email: "l@x.com", Company: "X", Role: "Eng", Location: "NY", Score: score,
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		out = append(out, l)
	}
	return out
}

type webhookResponse struct {
	Success bool        `json:"success"`
	Lead    schema.Lead `json:"lead"`
	Error   string      `json:"error"`
}

func TestWebhook_AbsentPhoneIsNull(t *testing.T) {
	r, h := setupTestRouter()

	w := postLead(r, `{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var raw map[string]any
	json.Unmarshal(w.Body.Bytes(), &raw)
	lead := raw["lead"].(map[string]any)
	if v, ok := lead["phone"]; !ok || v != nil {
		t.Errorf("Expected phone: null, got %v (present=%v)", v, ok)
	}
	if lead["score"] != float64(90) {
		t.Errorf("Expected score 90, got %v", lead["score"])
	}
	if id, _ := lead["id"].(string); id == "" {
		t.Error("Expected a generated id")
	}
	if ts, _ := lead["timestamp"].(string); ts == "" {
		t.Error("Expected an ISO-8601 timestamp")
	} else if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("Timestamp %q is not RFC 3339: %v", ts, err)
	}

	if n, _ := h.Store.Count(context.Background()); n != 1 {
		t.Errorf("Expected 1 stored lead, got %d", n)
	}
	if got := testutil.ToFloat64(h.Metrics.LeadsIngested); got != 1 {
		t.Errorf("Expected ingested counter 1, got %v", got)
	}
}

func TestWebhook_MissingFieldsRejected(t *testing.T) {
	r, h := setupTestRouter()

	w := postLead(r, `{"name":"Ann","score":90}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var res webhookResponse
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Success {
		t.Error("Expected success=false")
	}
	for _, field := range []string{"email", "company", "role", "location"} {
		if !strings.Contains(res.Error, field) {
			t.Errorf("Expected error to mention %s, got %q", field, res.Error)
		}
	}
	if n, _ := h.Store.Count(context.Background()); n != 0 {
		t.Errorf("Expected no lead to be created, got %d", n)
	}
	if got := testutil.ToFloat64(h.Metrics.ValidationFailures); got != 1 {
		t.Errorf("Expected validation failure counter 1, got %v", got)
	}
}

func TestWebhook_IgnoresCallerIdentity(t *testing.T) {
	r, _ := setupTestRouter()

	w := postLead(r, `{"id":"mine","timestamp":"1999-01-01T00:00:00Z","name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90,"phone":"555"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var res webhookResponse
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Lead.ID == "mine" {
		t.Error("Caller supplied id must be ignored")
	}
	if res.Lead.Timestamp.Year() == 1999 {
		t.Error("Caller supplied timestamp must be ignored")
	}
	if res.Lead.PhoneOrEmpty() != "555" {
		t.Errorf("Expected phone 555, got %q", res.Lead.PhoneOrEmpty())
	}
}

func TestWebhook_NotIdempotent(t *testing.T) {
	r, h := setupTestRouter()
	body := `{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90}`

	var a, b webhookResponse
	json.Unmarshal(postLead(r, body).Body.Bytes(), &a)
	json.Unmarshal(postLead(r, body).Body.Bytes(), &b)

	if a.Lead.ID == b.Lead.ID {
		t.Error("Identical payloads must create distinct leads")
	}
	if n, _ := h.Store.Count(context.Background()); n != 2 {
		t.Errorf("Expected 2 leads, got %d", n)
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	r, h := setupTestRouter()

	bodies := []string{
		"invalid",
		"",
		"[]",
		`{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90} this is not json`,
	}
	for _, body := range bodies {
		w := postLead(r, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected status 400, got %d", body, w.Code)
		}
	}
	if n, _ := h.Store.Count(context.Background()); n != 0 {
		t.Errorf("Malformed bodies must not create leads, got %d", n)
	}
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	r, h := setupTestRouter()
	h.MaxBodyBytes = 64

	body := `{"name":"` + strings.Repeat("a", 200) + `","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":1}`
	w := postLead(r, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestWebhook_ConcurrentPosts(t *testing.T) {
	r, h := setupTestRouter()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			postLead(r, `{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90}`)
		}()
	}
	wg.Wait()

	leads, _ := h.Store.ListAll(context.Background())
	if len(leads) != n {
		t.Fatalf("Expected %d leads, got %d", n, len(leads))
	}
	seen := map[string]bool{}
	for _, l := range leads {
		if seen[l.ID] {
			t.Fatalf("Duplicate id %s", l.ID)
		}
		seen[l.ID] = true
	}
}

func TestWebhook_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHandler(engine.NewMemStore(nil, nil))
	r := gin.New()
	r.POST("/api/webhook/lead", RateLimit(rate.NewLimiter(rate.Every(time.Hour), 1), h.Metrics), h.Webhook)

	body := `{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90}`
	if w := postLead(r, body); w.Code != http.StatusOK {
		t.Fatalf("Expected first call to pass, got %d", w.Code)
	}
	if w := postLead(r, body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	if n, _ := h.Store.Count(context.Background()); n != 1 {
		t.Errorf("Rate limited call must not create a lead, got %d", n)
	}
}

func TestListLeads_InsertionOrder(t *testing.T) {
	r, h := setupTestRouter()
	seeded := seed(t, h.Store, 92, 87, 75, 68)

	w := get(r, "/api/leads")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var leads []schema.Lead
	json.Unmarshal(w.Body.Bytes(), &leads)
	if len(leads) != 4 {
		t.Fatalf("Expected 4 leads, got %d", len(leads))
	}
	high := 0
	for i, l := range leads {
		if l.ID != seeded[i].ID {
			t.Errorf("Position %d: expected %s, got %s", i, seeded[i].ID, l.ID)
		}
		if l.Score >= 80 {
			high++
		}
	}
	if high != 2 {
		t.Errorf("Expected 2 high score leads, got %d", high)
	}
}

func TestListLeads_EmptyIsArray(t *testing.T) {
	r, _ := setupTestRouter()

	w := get(r, "/api/leads")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected [], got %s", w.Body.String())
	}
}

func TestGetLead(t *testing.T) {
	r, h := setupTestRouter()
	seeded := seed(t, h.Store, 50)

	w := get(r, "/api/leads/"+seeded[0].ID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var lead schema.Lead
	json.Unmarshal(w.Body.Bytes(), &lead)
	if lead.ID != seeded[0].ID {
		t.Errorf("Expected %s, got %s", seeded[0].ID, lead.ID)
	}

	if w := get(r, "/api/leads/nope"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	r, h := setupTestRouter()
	seed(t, h.Store, 92, 87, 75, 68)
	h.Now = func() time.Time { return time.Now() }

	w := get(r, "/api/leads/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var s report.Stats
	json.Unmarshal(w.Body.Bytes(), &s)
	want := report.Stats{Total: 4, Last24Hours: 4, HighScore: 2, LowScore: 2}
	if s != want {
		t.Errorf("Expected %+v, got %+v", want, s)
	}
}

func TestExportCSV_EmptyIsHeaderOnly(t *testing.T) {
	r, _ := setupTestRouter()

	w := get(r, "/api/export/csv")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "Name,Email,Phone,Company,Role,Location,Score,Timestamp" {
		t.Errorf("Expected header line only, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	want := "attachment; filename=" + export.Filename(export.FormatCSV, fixedNow)
	if cd := w.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Expected %q, got %q", want, cd)
	}
}

func TestExportCSV_AbsentPhoneIsEmptyQuoted(t *testing.T) {
	r, h := setupTestRouter()
	seed(t, h.Store, 70)

	w := get(r, "/api/export/csv")
	lines := strings.Split(w.Body.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	fields := strings.Split(lines[1], ",")
	if fields[2] != `""` {
		t.Errorf("Expected empty quoted phone, got %s", fields[2])
	}
	if strings.Contains(lines[1], "null") || strings.Contains(lines[1], "undefined") {
		t.Errorf("Absent phone leaked into CSV: %s", lines[1])
	}

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("CSV does not parse: %v", err)
	}
	if records[1][6] != "70" {
		t.Errorf("Expected score 70, got %s", records[1][6])
	}
}

func TestExportExcel(t *testing.T) {
	r, h := setupTestRouter()
	seeded := seed(t, h.Store, 92, 68)

	w := get(r, "/api/export/excel")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != export.FormatXLSX.ContentType() {
		t.Errorf("Unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasSuffix(cd, ".xlsx") {
		t.Errorf("Unexpected disposition %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("Export is not a workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows(export.SheetName)
	if len(rows) != 3 || rows[1][0] != seeded[0].Name || rows[2][6] != "68" {
		t.Errorf("Unexpected rows: %v", rows)
	}
	if got := testutil.ToFloat64(h.Metrics.Exports.WithLabelValues("xlsx")); got != 1 {
		t.Errorf("Expected xlsx export counter 1, got %v", got)
	}
}

// brokenStore fails every call.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Create(context.Context, schema.LeadInput) (schema.Lead, error) {
	return schema.Lead{}, errStoreDown
}
func (brokenStore) ListAll(context.Context) ([]schema.Lead, error) { return nil, errStoreDown }
func (brokenStore) GetByID(context.Context, string) (schema.Lead, error) {
	return schema.Lead{}, errStoreDown
}
func (brokenStore) Count(context.Context) (int, error) { return 0, errStoreDown }
func (brokenStore) Close() error                       { return nil }

func TestStoreFailures(t *testing.T) {
	r, _ := setupTestRouterWith(brokenStore{})

	w := postLead(r, `{"name":"Ann","email":"a@x.com","company":"X","role":"Eng","location":"NY","score":90}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Webhook: expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), errStoreDown.Error()) {
		t.Error("Internal error details must not reach the client")
	}

	cases := map[string]string{
		"/api/leads":        "Failed to fetch leads",
		"/api/leads/x":      "Failed to fetch lead",
		"/api/export/csv":   "Failed to export to CSV",
		"/api/export/excel": "Failed to export to Excel",
	}
	for path, msg := range cases {
		w := get(r, path)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, w.Code)
		}
		var body map[string]string
		json.Unmarshal(w.Body.Bytes(), &body)
		if body["error"] != msg {
			t.Errorf("%s: expected error %q, got %q", path, msg, body["error"])
		}
		if w.Header().Get("Content-Disposition") != "" {
			t.Errorf("%s: failed export must not look like a download", path)
		}
	}

	if w := get(r, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Health: expected 503, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r, h := setupTestRouter()
	seed(t, h.Store, 1, 2)

	w := get(r, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["leads"] != float64(2) {
		t.Errorf("Expected 2 leads, got %v", body["leads"])
	}
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://dash.example.com"))
	r.GET("/api/leads", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("OPTIONS", "/api/leads", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Unexpected origin header %q", got)
	}
}
