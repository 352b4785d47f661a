package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/persistence/memory"
	"github.com/Nissan15/hackathon/internal/recommend"
)

var testAuthConfig = auth.Config{Secret: "test-secret", Issuer: "campus-carbon-test", TTL: time.Hour}

type harness struct {
	store   *memory.Store
	handler http.Handler
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.UpsertEmissionFactor(ctx, domain.EmissionFactor{SourceType: "electricity", Factor: 0.5, Unit: "kWh"}); err != nil {
		t.Fatalf("seed factor: %v", err)
	}

	authn := auth.NewAuthenticator(store, testAuthConfig)
	if err := authn.SetPassword(ctx, "operator", "s3cret"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	today := time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC)
	engine := dashboard.NewEngine(store, dashboard.WithClock(func() time.Time { return today }))
	h := NewHandler(domain.NewService(store), engine, recommend.NewService(store), authn, opts...)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &harness{store: store, handler: auth.NewMiddleware(testAuthConfig).Wrap(mux)}
}

func (h *harness) do(t *testing.T, method, path, token, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/login", "", "application/json", `{"username":"operator","password":"s3cret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Username != "operator" || resp.Token == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}
	return resp.Token
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	rr := h.do(t, http.MethodPost, "/api/login", "", "application/json", `{"username":"operator","password":"wrong"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["detail"]; got != "Invalid credentials" {
		t.Fatalf("unexpected detail %q", got)
	}

	rr = h.do(t, http.MethodPost, "/api/login", "", "application/json", `{"username":"operator"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	rr = h.do(t, http.MethodGet, "/api/login", "", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

func TestAddDataRequiresToken(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/api/data", "", "application/json", `{"date":"2025-01-10","source_type":"electricity","raw_value":10,"unit":"kWh"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestAddDataRequiresWriteScope(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/data", strings.NewReader(`{}`))
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "1",
		Scopes:    map[string]struct{}{auth.ScopeDashboardRead: {}},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	rr := httptest.NewRecorder()
	NewHandler(domain.NewService(h.store), nil, nil, nil).addData(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestAddDataAndDashboard(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	rr := h.do(t, http.MethodPost, "/api/data", token, "application/json", `{"date":"2025-01-10","source_type":"electricity","raw_value":"1000","unit":"kWh"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var created MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Message != "Data added successfully" || created.ID == "" {
		t.Fatalf("unexpected response %+v", created)
	}

	rr = h.do(t, http.MethodPost, "/api/data", token, "application/json", `{"date":"10/01/2025","source_type":"electricity","raw_value":1,"unit":"kWh"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date got %d", rr.Code)
	}
	rr = h.do(t, http.MethodPost, "/api/data", token, "application/json", `{"date":"2025-01-10","source_type":"electricity","unit":"kWh"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing raw_value got %d", rr.Code)
	}

	rr = h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var report dashboard.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.KPIs.TotalEmissions != 0.5 {
		t.Fatalf("expected total 0.5 got %v", report.KPIs.TotalEmissions)
	}
	if report.KPIs.BiggestSource != "electricity" {
		t.Fatalf("expected electricity got %q", report.KPIs.BiggestSource)
	}
}

func TestDashboardErrors(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-13-01", "", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["type"]; got != "invalid_date" {
		t.Fatalf("unexpected type %q", got)
	}

	h.store.FailAcquire(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	rr = h.do(t, http.MethodGet, "/api/dashboard", "", "", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	body := decodeError(t, rr)
	if body["detail"] != "Database connection error" {
		t.Fatalf("unexpected detail %q", body["detail"])
	}
	if strings.Contains(rr.Body.String(), "10.0.0.1") {
		t.Fatalf("response leaked cause: %s", rr.Body.String())
	}
}

func TestDashboardQueryFailure(t *testing.T) {
	h := newHarness(t)
	h.store.FailQueriesAfter(1, errors.New("read tcp 10.0.0.1:5432: connection reset by peer"))

	rr := h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if got := decodeError(t, rr)["detail"]; got != "Database connection error" {
		t.Fatalf("unexpected detail %q", got)
	}
	if strings.Contains(rr.Body.String(), "10.0.0.1") {
		t.Fatalf("response leaked cause: %s", rr.Body.String())
	}
	if got := h.store.Released(); got != 1 {
		t.Fatalf("expected 1 released connection got %d", got)
	}
}

func TestDashboardNonFiniteTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.store.UpsertEmissionFactor(ctx, domain.EmissionFactor{SourceType: "electricity", Factor: 1e300, Unit: "kWh"}); err != nil {
		t.Fatalf("seed factor: %v", err)
	}
	day, err := domain.ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	if err := h.store.InsertActivities(ctx, []domain.ActivityRecord{
		{ID: "huge", Date: day, SourceType: "electricity", RawValue: 1e308, Unit: "kWh"},
	}); err != nil {
		t.Fatalf("seed activity: %v", err)
	}

	rr := h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeError(t, rr)
	if body["detail"] != "Internal error" {
		t.Fatalf("unexpected detail %q", body["detail"])
	}
	if strings.Contains(rr.Body.String(), "finite") || strings.Contains(rr.Body.String(), "computation") {
		t.Fatalf("response leaked cause: %s", rr.Body.String())
	}
}

func TestHumanCounts(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"missing", `{"date":"2025-01-10"}`, http.StatusBadRequest},
		{"bad date", `{"date":"2025/01/10","humans":5}`, http.StatusBadRequest},
		{"negative", `{"date":"2025-01-10","humans":-1}`, http.StatusBadRequest},
		{"fraction", `{"date":"2025-01-10","humans":1.5}`, http.StatusBadRequest},
		{"ok", `{"date":"2025-01-10","humans":"120"}`, http.StatusCreated},
		{"overwrite", `{"date":"2025-01-10","humans":80}`, http.StatusCreated},
	}
	for _, tc := range cases {
		rr := h.do(t, http.MethodPost, "/api/humans", token, "application/json", tc.body)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d got %d: %s", tc.name, tc.status, rr.Code, rr.Body.String())
		}
	}

	rr := h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	var report dashboard.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.KPIs.TotalHumans != 80 {
		t.Fatalf("expected overwritten count 80 got %d", report.KPIs.TotalHumans)
	}
}

func TestHumanCountsMissingTable(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)
	h.store.DropHumanCounts()

	rr := h.do(t, http.MethodPost, "/api/humans", token, "application/json", `{"date":"2025-01-10","humans":5}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if detail := decodeError(t, rr)["detail"]; !strings.Contains(detail, "campuscarbon migrate") {
		t.Fatalf("detail should point at migrate, got %q", detail)
	}
}

func TestUploadCSV(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)

	rr := h.do(t, http.MethodPost, "/api/upload_csv", token, "application/json",
		`{"records":[{"date":"2025-01-10","source_type":"electricity","raw_value":"100","unit":"kWh"},{"date":"2025-01-11","source_type":"electricity","raw_value":300,"unit":"kWh"}]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Message != "2 records inserted." {
		t.Fatalf("unexpected response %+v", resp)
	}

	csvBody := "date,source_type,raw_value,unit\n2025-01-12,electricity,600,kWh\n"
	rr = h.do(t, http.MethodPost, "/api/upload_csv", token, "text/csv; charset=utf-8", csvBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for csv got %d: %s", rr.Code, rr.Body.String())
	}

	for name, body := range map[string]string{
		"empty":       `{"records":[]}`,
		"not a list":  `{"records":"nope"}`,
		"bad value":   `{"records":[{"date":"2025-01-10","source_type":"electricity","raw_value":"abc","unit":"kWh"}]}`,
		"one invalid": `{"records":[{"date":"2025-01-10","source_type":"electricity","raw_value":1,"unit":"kWh"},{"date":"bad","source_type":"electricity","raw_value":1,"unit":"kWh"}]}`,
	} {
		rr = h.do(t, http.MethodPost, "/api/upload_csv", token, "application/json", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, rr.Code)
		}
		if detail := decodeError(t, rr)["detail"]; detail != "Invalid CSV format." {
			t.Fatalf("%s: unexpected detail %q", name, detail)
		}
	}

	rr = h.do(t, http.MethodPost, "/api/upload_csv", token, "text/csv", "date,source_type,unit\n2025-01-12,electricity,kWh\n")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing column got %d", rr.Code)
	}

	rr = h.do(t, http.MethodGet, "/api/dashboard?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	var report dashboard.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.KPIs.TotalEmissions != 0.5 {
		t.Fatalf("rejected batches must not be stored, total=%v", report.KPIs.TotalEmissions)
	}
}

func TestRecommendationsAndFactors(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/recommendations", "", "", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"recommendations":[]}` {
		t.Fatalf("expected empty recommendations got %d %s", rr.Code, rr.Body.String())
	}

	token := h.login(t)
	h.do(t, http.MethodPost, "/api/data", token, "application/json", `{"date":"2025-01-10","source_type":"electricity","raw_value":10,"unit":"kWh"}`)

	rr = h.do(t, http.MethodGet, "/api/recommendations", "", "", "")
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected an object body: %v", err)
	}
	var recs []recommend.Recommendation
	if err := json.Unmarshal(body["recommendations"], &recs); err != nil {
		t.Fatalf("decode recommendations: %v", err)
	}
	if len(recs) != 3 || recs[0].Title != "Focus on Energy Efficiency" {
		t.Fatalf("unexpected recommendations %+v", recs)
	}

	rr = h.do(t, http.MethodGet, "/api/factors", "", "", "")
	var factors []FactorView
	if err := json.Unmarshal(rr.Body.Bytes(), &factors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(factors) != 1 || factors[0].SourceType != "electricity" {
		t.Fatalf("unexpected factors %+v", factors)
	}
}

func TestEquivalencies(t *testing.T) {
	h := newHarness(t)
	token := h.login(t)
	h.do(t, http.MethodPost, "/api/data", token, "application/json", `{"date":"2025-01-10","source_type":"electricity","raw_value":1920,"unit":"kWh"}`)

	rr := h.do(t, http.MethodGet, "/api/equivalencies?start_date=2025-01-01&end_date=2025-01-31", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp EquivalencyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StartDate != "2025-01-01" || resp.EndDate != "2025-01-31" {
		t.Fatalf("unexpected range %s..%s", resp.StartDate, resp.EndDate)
	}
	if resp.Equivalencies.Empty || len(resp.Equivalencies.Results) == 0 {
		t.Fatalf("expected equivalencies for 0.96 t, got %+v", resp.Equivalencies)
	}
	if resp.Equivalencies.Results[0].Formatted != "5,000" {
		t.Fatalf("expected 5,000 miles got %q", resp.Equivalencies.Results[0].Formatted)
	}
}

func TestResetAdmin(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/debug/reset_admin", "", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside debug mode got %d", rr.Code)
	}

	h = newHarness(t, WithDebugMode(true))
	rr = h.do(t, http.MethodPost, "/debug/reset_admin", "", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = h.do(t, http.MethodPost, "/api/login", "", "application/json", `{"username":"admin","password":"admin123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin login failed: %d %s", rr.Code, rr.Body.String())
	}
}

func TestParseCSVReordersColumns(t *testing.T) {
	inputs, err := parseCSV([]byte("unit, raw_value ,date,source_type\nkWh,12.5,2025-01-01,electricity\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inputs) != 1 || *inputs[0].RawValue != 12.5 || inputs[0].Unit != "kWh" || inputs[0].Date != "2025-01-01" {
		t.Fatalf("unexpected inputs %+v", inputs)
	}

	if _, err := parseCSV(bytes.TrimSpace([]byte("date,source_type,raw_value,unit"))); err == nil {
		t.Fatal("expected error for header-only csv")
	}
}
