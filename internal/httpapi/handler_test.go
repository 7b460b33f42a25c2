package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"antrian/antrian-service/internal/auth"
	"antrian/antrian-service/internal/models"
	"antrian/antrian-service/internal/queue"
	"antrian/antrian-service/internal/store"
	"antrian/antrian-service/internal/store/memory"

	"github.com/golang-jwt/jwt/v4"
)

type fakeVerifier struct {
	verifyFn func(ctx context.Context, token string) (*auth.Claims, error)
}

func (f fakeVerifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	if f.verifyFn == nil {
		return nil, auth.ErrUnauthorized
	}
	return f.verifyFn(ctx, token)
}

func acceptToken(valid string) fakeVerifier {
	return fakeVerifier{verifyFn: func(ctx context.Context, token string) (*auth.Claims, error) {
		if token != valid {
			return nil, auth.ErrUnauthorized
		}
		return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "auth0|petugas"}}, nil
	}}
}

type fakeStore struct {
	*memory.Store
	pingFn  func(ctx context.Context) error
	queryFn func(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn == nil {
		return nil
	}
	return f.pingFn(ctx)
}

func (f *fakeStore) QueryTickets(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
	if f.queryFn == nil {
		return f.Store.QueryTickets(ctx, query)
	}
	return f.queryFn(ctx, query)
}

var testNow = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, st store.Store, options Options) http.Handler {
	t.Helper()
	service := queue.NewService(st, queue.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	return NewHandler(service, st, options).Routes()
}

func newOpenHandler(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	st := memory.New()
	return st, newTestHandler(t, st, Options{AuthDisabled: true})
}

func doRequest(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeTickets(t *testing.T, rec *httptest.ResponseRecorder) []models.TicketDocument {
	t.Helper()
	var tickets []models.TicketDocument
	if err := json.NewDecoder(rec.Body).Decode(&tickets); err != nil {
		t.Fatalf("decode tickets: %v (body %q)", err, rec.Body.String())
	}
	return tickets
}

func decodeTicket(t *testing.T, rec *httptest.ResponseRecorder) models.TicketDocument {
	t.Helper()
	var ticket models.TicketDocument
	if err := json.NewDecoder(rec.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode ticket: %v (body %q)", err, rec.Body.String())
	}
	return ticket
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func createTicket(t *testing.T, h http.Handler, tenantID, body string) models.TicketDocument {
	t.Helper()
	rec := doRequest(h, http.MethodPost, "/api/antrian/"+tenantID, body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ticket: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	return decodeTicket(t, rec)
}

func TestAllInDayUsesHalfOpenWindow(t *testing.T) {
	_, h := newOpenHandler(t)
	created := createTicket(t, h, "T1", `{"tenant_id":"T1","user_id":"U1","tanggal":"2024-03-10"}`)
	if created.ID == "" || created.Data["status"] != models.StatusWaiting {
		t.Fatalf("unexpected created ticket: %+v", created)
	}

	cases := []struct {
		date string
		want int
	}{
		{"2024-03-09", 0},
		{"2024-03-10", 1},
		{"2024-03-11", 0},
	}
	for _, tc := range cases {
		rec := doRequest(h, http.MethodGet, "/api/antrian/all?id=T1&date="+tc.date, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("date %s: expected 200, got %d", tc.date, rec.Code)
		}
		if got := len(decodeTickets(t, rec)); got != tc.want {
			t.Fatalf("date %s: expected %d tickets, got %d", tc.date, tc.want, got)
		}
	}
}

func TestEmptyQueryReturnsEmptyArray(t *testing.T) {
	_, h := newOpenHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/antrian/selesai?id=T1&date=2024-03-10&status=Selesai", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestPromoteUnknownTicketReturnsNotFound(t *testing.T) {
	_, h := newOpenHandler(t)
	rec := doRequest(h, http.MethodPut, "/api/antrian/firstedit/does-not-exist", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "ticket_not_found" {
		t.Fatalf("expected ticket_not_found, got %s", resp.Error.Code)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	_, h := newOpenHandler(t)
	ticket := createTicket(t, h, "T1", `{"user_id":"U1","tanggal":"2024-03-10","poli":"umum"}`)

	rec := doRequest(h, http.MethodPut, "/api/antrian/firstedit/"+ticket.ID, "", nil)
	if rec.Code != http.StatusOK || decodeTicket(t, rec).Data["status"] != models.StatusActive {
		t.Fatalf("promote failed: %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/antrian/activenow?id=T1&date=2024-03-10&status=Aktif", "", nil)
	active := decodeTickets(t, rec)
	if len(active) != 1 || active[0].ID != ticket.ID || active[0].Data["poli"] != "umum" {
		t.Fatalf("unexpected active tickets: %+v", active)
	}

	rec = doRequest(h, http.MethodPut, "/api/antrian/ditangani/"+ticket.ID, "", nil)
	if rec.Code != http.StatusOK || decodeTicket(t, rec).Data["status"] != models.StatusDone {
		t.Fatalf("mark handled failed: %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPut, "/api/antrian/ditangani/"+ticket.ID, "", nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Error.Code != "invalid_transition" {
		t.Fatalf("expected second mark handled to be rejected, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPut, "/api/antrian/cancel?antrianId="+ticket.ID, "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected cancel on done ticket to be rejected, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/antrian/riwayat/"+ticket.ID, "", nil)
	var history struct {
		Status string              `json:"status"`
		Events []store.TicketEvent `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Status != models.StatusDone || len(history.Events) != 3 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestSecondPromotionSameDayConflicts(t *testing.T) {
	_, h := newOpenHandler(t)
	first := createTicket(t, h, "T1", `{"user_id":"U1","tanggal":"2024-03-10"}`)
	second := createTicket(t, h, "T1", `{"user_id":"U2","tanggal":"2024-03-10"}`)

	if rec := doRequest(h, http.MethodPut, "/api/antrian/firstedit/"+first.ID, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first promote: %d", rec.Code)
	}
	rec := doRequest(h, http.MethodPut, "/api/antrian/firstedit/"+second.ID, "", nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Error.Code != "active_exists" {
		t.Fatalf("expected active_exists, got %d", rec.Code)
	}
}

func TestFirstAndCallNext(t *testing.T) {
	_, h := newOpenHandler(t)
	rec := doRequest(h, http.MethodGet, "/api/antrian/first?id=T1&date=2024-03-10", "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Error.Code != "queue_empty" {
		t.Fatalf("expected queue_empty, got %d", rec.Code)
	}

	early := createTicket(t, h, "T1", `{"user_id":"U1","tanggal":"2024-03-10"}`)
	createTicket(t, h, "T1", `{"user_id":"U2","tanggal":"2024-03-10"}`)

	rec = doRequest(h, http.MethodGet, "/api/antrian/first?id=T1&date=2024-03-10", "", nil)
	if got := decodeTicket(t, rec); got.ID != early.ID {
		t.Fatalf("expected earliest ticket %s first, got %s", early.ID, got.ID)
	}

	rec = doRequest(h, http.MethodPut, "/api/antrian/next?id=T1&date=2024-03-10", "", nil)
	called := decodeTicket(t, rec)
	if rec.Code != http.StatusOK || called.ID != early.ID || called.Data["status"] != models.StatusActive {
		t.Fatalf("unexpected call next result: %d %+v", rec.Code, called)
	}

	rec = doRequest(h, http.MethodGet, "/api/antrian/allantri?id=T1&date=2024-03-10&status=Menunggu", "", nil)
	if waiting := decodeTickets(t, rec); len(waiting) != 1 {
		t.Fatalf("expected one ticket still waiting, got %d", len(waiting))
	}
}

func TestUserTickets(t *testing.T) {
	_, h := newOpenHandler(t)
	ticket := createTicket(t, h, "T1", `{"user_id":"U1","tanggal":"2024-03-10"}`)
	createTicket(t, h, "T2", `{"user_id":"U1","tanggal":"2024-03-11"}`)
	createTicket(t, h, "T1", `{"user_id":"U2","tanggal":"2024-03-10"}`)
	doRequest(h, http.MethodPut, "/api/antrian/firstedit/"+ticket.ID, "", nil)

	rec := doRequest(h, http.MethodGet, "/api/antrian/U1", "", nil)
	if all := decodeTickets(t, rec); len(all) != 2 {
		t.Fatalf("expected 2 tickets for U1, got %d", len(all))
	}
	rec = doRequest(h, http.MethodGet, "/api/antrian/U1?status=Aktif", "", nil)
	if active := decodeTickets(t, rec); len(active) != 1 || active[0].ID != ticket.ID {
		t.Fatalf("unexpected active tickets for U1: %+v", active)
	}
	rec = doRequest(h, http.MethodGet, "/api/antrian/exist?id=T1&date=2024-03-10&status=Aktif&user_id=U1", "", nil)
	if exist := decodeTickets(t, rec); len(exist) != 1 {
		t.Fatalf("expected exist to match, got %d", len(exist))
	}
}

func TestQueryValidation(t *testing.T) {
	_, h := newOpenHandler(t)
	cases := []struct {
		name   string
		target string
	}{
		{"missing tenant", "/api/antrian/all?date=2024-03-10"},
		{"missing date", "/api/antrian/all?id=T1"},
		{"bad date", "/api/antrian/all?id=T1&date=10-03-2024"},
		{"missing status", "/api/antrian/lastactive?id=T1&date=2024-03-10"},
		{"unknown status", "/api/antrian/last?id=T1&date=2024-03-10&status=Selesai2"},
		{"exist without user", "/api/antrian/exist?id=T1&date=2024-03-10&status=Aktif"},
		{"user tickets unknown status", "/api/antrian/U1?status=done"},
		{"cancel without id", "/api/antrian/cancel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodGet
			if strings.Contains(tc.target, "cancel") {
				method = http.MethodPut
			}
			rec := doRequest(h, method, tc.target, "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error.Code != "invalid_request" {
				t.Fatalf("expected invalid_request, got %s", resp.Error.Code)
			}
		})
	}
}

func TestCreateTicketValidation(t *testing.T) {
	_, h := newOpenHandler(t)
	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{"user_id":`, "invalid_json"},
		{"array body", `[1,2]`, "invalid_json"},
		{"missing user", `{"tanggal":"2024-03-10"}`, "invalid_request"},
		{"tenant mismatch", `{"tenant_id":"T2","user_id":"U1"}`, "invalid_request"},
		{"bad tanggal", `{"user_id":"U1","tanggal":"kemarin"}`, "invalid_request"},
		{"non waiting status", `{"user_id":"U1","status":"Aktif"}`, "invalid_request"},
		{"numeric status", `{"user_id":"U1","status":5}`, "invalid_request"},
		{"boolean status", `{"user_id":"U1","status":true}`, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/api/antrian/T1", tc.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error.Code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, resp.Error.Code)
			}
		})
	}
}

func TestCreateTicketDefaultsToToday(t *testing.T) {
	_, h := newOpenHandler(t)
	ticket := createTicket(t, h, "T1", `{"user_id":"U1"}`)
	if ticket.Data["tanggal"] != "2024-03-10" {
		t.Fatalf("expected today's date, got %v", ticket.Data["tanggal"])
	}
}

func TestMutatingRoutesRequireAuth(t *testing.T) {
	st := memory.New()
	h := newTestHandler(t, st, Options{Verifier: acceptToken("good-token")})

	routes := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodPost, "/api/antrian/T1", `{"user_id":"U1"}`},
		{http.MethodPut, "/api/antrian/firstedit/x", ""},
		{http.MethodPut, "/api/antrian/ditangani/x", ""},
		{http.MethodPut, "/api/antrian/cancel?antrianId=x", ""},
		{http.MethodPut, "/api/antrian/next?id=T1&date=2024-03-10", ""},
		{http.MethodPost, "/api/rekam/U1", `{"nama":"Budi"}`},
		{http.MethodPut, "/api/rekam/U1", `{"nama":"Budi"}`},
		{http.MethodGet, "/api/external", ""},
	}
	for _, route := range routes {
		for _, header := range []string{"", "Bearer bad-token", "Basic good-token"} {
			headers := map[string]string{}
			if header != "" {
				headers["Authorization"] = header
			}
			rec := doRequest(h, route.method, route.target, route.body, headers)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("%s %s with %q: expected 401, got %d", route.method, route.target, header, rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("%s %s: missing WWW-Authenticate", route.method, route.target)
			}
		}
	}

	rec := doRequest(h, http.MethodPost, "/api/antrian/T1", `{"user_id":"U1"}`, map[string]string{"Authorization": "Bearer good-token"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected authorized create to succeed, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/antrian/all?id=T1&date=2024-03-10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read routes stay public, got %d", rec.Code)
	}
}

func TestExternalReturnsSubject(t *testing.T) {
	h := newTestHandler(t, memory.New(), Options{Verifier: acceptToken("good-token")})
	rec := doRequest(h, http.MethodGet, "/api/external", "", map[string]string{"Authorization": "Bearer good-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["sub"] != "auth0|petugas" || body["msg"] == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestMissingVerifierRejects(t *testing.T) {
	h := newTestHandler(t, memory.New(), Options{})
	rec := doRequest(h, http.MethodPost, "/api/antrian/T1", `{"user_id":"U1"}`, map[string]string{"Authorization": "Bearer anything"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without verifier, got %d", rec.Code)
	}
}

func TestRecordRoutes(t *testing.T) {
	_, h := newOpenHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/rekam/U1", "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Error.Code != "record_not_found" {
		t.Fatalf("expected record_not_found, got %d", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/rekamlast", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no records, got %d", rec.Code)
	}
	rec = doRequest(h, http.MethodPut, "/api/rekam/U1", `{"nama":"Budi"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected update without record to fail, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/rekam/U1", `{"nama":"Budi","alamat":"Surabaya","nomor_rekam":1207}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doRequest(h, http.MethodPost, "/api/rekam/U1", `{"nama":"Budi"}`, nil)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Error.Code != "record_exists" {
		t.Fatalf("expected record_exists, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPut, "/api/rekam/U1", `{"alamat":"Malang"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update record: %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/rekam/U1", "", nil)
	var doc map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if doc["nama"] != "Budi" || doc["alamat"] != "Malang" || doc["user_id"] != "U1" {
		t.Fatalf("unexpected record: %+v", doc)
	}
	if doc["nomor_rekam"] != float64(1207) {
		t.Fatalf("expected nomor_rekam 1207, got %v", doc["nomor_rekam"])
	}

	rec = doRequest(h, http.MethodGet, "/api/rekamlast", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected last record, got %d", rec.Code)
	}
}

func TestTenantRoutes(t *testing.T) {
	st, h := newOpenHandler(t)
	st.PutTenant(models.Tenant{TenantID: "T1", Data: map[string]interface{}{"nama": "Poli Umum"}})

	rec := doRequest(h, http.MethodGet, "/api/tenant", "", nil)
	var tenants []models.Tenant
	if err := json.NewDecoder(rec.Body).Decode(&tenants); err != nil {
		t.Fatalf("decode tenants: %v", err)
	}
	if len(tenants) != 1 || tenants[0].TenantID != "T1" {
		t.Fatalf("unexpected tenants: %+v", tenants)
	}

	rec = doRequest(h, http.MethodGet, "/api/tenant/T1", "", nil)
	var data map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("decode tenant: %v", err)
	}
	if data["nama"] != "Poli Umum" {
		t.Fatalf("unexpected tenant data: %+v", data)
	}

	rec = doRequest(h, http.MethodGet, "/api/tenant/T9", "", nil)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Error.Code != "tenant_not_found" {
		t.Fatalf("expected tenant_not_found, got %d", rec.Code)
	}
}

func TestStoreUnavailable(t *testing.T) {
	st := &fakeStore{
		Store:  memory.New(),
		pingFn: func(ctx context.Context) error { return store.ErrUnavailable },
		queryFn: func(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
			return nil, errors.Join(store.ErrUnavailable, errors.New("connection refused"))
		},
	}
	h := newTestHandler(t, st, Options{AuthDisabled: true})

	rec := doRequest(h, http.MethodGet, "/api/antrian/all?id=T1&date=2024-03-10", "", map[string]string{"X-Request-ID": "req-1"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != "store_unavailable" || resp.RequestID != "req-1" {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	if strings.Contains(resp.Error.Message, "connection refused") {
		t.Fatalf("internal error leaked: %s", resp.Error.Message)
	}

	rec = doRequest(h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unhealthy, got %d", rec.Code)
	}
}

func TestDeadlineMapsToUnavailable(t *testing.T) {
	st := &fakeStore{
		Store: memory.New(),
		queryFn: func(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	h := TimeoutMiddleware(10*time.Millisecond, newTestHandler(t, st, Options{AuthDisabled: true}))
	rec := doRequest(h, http.MethodGet, "/api/antrian/all?id=T1&date=2024-03-10", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on deadline, got %d", rec.Code)
	}
}

func TestClientCancelIsNotServerError(t *testing.T) {
	st := &fakeStore{
		Store: memory.New(),
		queryFn: func(ctx context.Context, query store.TicketQuery) ([]models.Ticket, error) {
			return nil, context.Canceled
		},
	}
	h := newTestHandler(t, st, Options{AuthDisabled: true})
	rec := doRequest(h, http.MethodGet, "/api/antrian/all?id=T1&date=2024-03-10", "", nil)
	if rec.Code != statusClientClosedRequest {
		t.Fatalf("expected %d on cancel, got %d", statusClientClosedRequest, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "request_canceled" {
		t.Fatalf("unexpected code %s", resp.Error.Code)
	}
}

func TestRootAndHealth(t *testing.T) {
	_, h := newOpenHandler(t)
	rec := doRequest(h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "API is Running" {
		t.Fatalf("unexpected root response: %d %q", rec.Code, rec.Body.String())
	}
	rec = doRequest(h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "requests_total") {
		t.Fatalf("expected expvar output, got %d", rec.Code)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
		{store.ErrTenantNotFound, http.StatusNotFound, "tenant_not_found"},
		{store.ErrRecordNotFound, http.StatusNotFound, "record_not_found"},
		{queue.ErrQueueEmpty, http.StatusNotFound, "queue_empty"},
		{store.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{store.ErrActiveExists, http.StatusConflict, "active_exists"},
		{store.ErrRecordExists, http.StatusConflict, "record_exists"},
		{auth.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{store.ErrUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "store_unavailable"},
		{context.Canceled, statusClientClosedRequest, "request_canceled"},
		{fmt.Errorf("query: %w", context.Canceled), statusClientClosedRequest, "request_canceled"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code, _ := mapError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}

	_, _, msg := mapError(errors.Join(queue.ErrInvalidRequest, errors.New("x")))
	if msg == "" {
		t.Fatalf("expected validation message")
	}
}
