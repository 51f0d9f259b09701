package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taxline/internal/app"
	"taxline/internal/db"
	"taxline/internal/domain"
	"taxline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	auth.Logger = logger
	handler, err := New(Config{Service: app.New(conn, "", logger), BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func filerBody(save bool) map[string]any {
	return map[string]any{
		"tax_year": 2020,
		"save":     save,
		"input": map[string]any{
			"first_name": "Jane",
			"last_name":  "Doe",
			"ssn":        "123-45-6789",
			"single":     true,
			"resident":   true,
			"checking":   true,
			"w2": []map[string]any{
				{"wages": 50000, "federal_tax": 5000, "state_tax": 2000},
			},
		},
	}
}

func TestComputeSaveAndFetch(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/returns", filerBody(true), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("compute status %d: %s", res.StatusCode, string(data))
	}
	var computed app.ComputeResult
	if err := json.Unmarshal(data, &computed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if computed.ID == "" {
		t.Fatalf("expected saved return id")
	}
	if got := computed.Return.Forms.Fields("f1040").Decimal("34").String(); got != "685.5" {
		t.Fatalf("expected overpayment 685.5, got %s", got)
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns/"+computed.ID, nil, nil)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", getRes.StatusCode, string(getBody))
	}
	var rec domain.ReturnRecord
	if err := json.Unmarshal(getBody, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.Name != "Jane Doe" || rec.TaxYear != 2020 {
		t.Fatalf("unexpected record %+v", rec)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns?tax_year=2020", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listBody))
	}
	var list ReturnListResponse
	_ = json.Unmarshal(listBody, &list)
	if len(list.Items) != 1 || list.Items[0].ID != computed.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	evRes, evBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns/"+computed.ID+"/events", nil, nil)
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", evRes.StatusCode, string(evBody))
	}
	var evts EventListResponse
	_ = json.Unmarshal(evBody, &evts)
	if len(evts.Items) != 1 || evts.Items[0].ActorID != localActor {
		t.Fatalf("unexpected events %+v", evts)
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/returns/"+computed.ID, nil, map[string]string{"X-Actor-Id": "auditor"})
	if delRes.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", delRes.StatusCode, string(delBody))
	}
	missRes, missBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns/"+computed.ID, nil, nil)
	if missRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", missRes.StatusCode, string(missBody))
	}
}

func TestComputeInvalidInput(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	body := filerBody(false)
	body["input"].(map[string]any)["ssn"] = ""

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/returns", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if env.Error.Code != "invalid_input" {
		t.Fatalf("expected invalid_input, got %+v", env.Error)
	}
}

func TestComputeUnknownYear(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	body := filerBody(false)
	body["tax_year"] = 1999
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/returns", body, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestYearConfigAndPlan(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/years/2020/config", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("config status %d: %s", res.StatusCode, string(data))
	}
	var cfg map[string]any
	_ = json.Unmarshal(data, &cfg)
	if cfg["year"] != float64(2020) {
		t.Fatalf("unexpected config year %v", cfg["year"])
	}

	planRes, planBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/plan", nil, nil)
	if planRes.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", planRes.StatusCode, string(planBody))
	}
	var plan PlanResponse
	_ = json.Unmarshal(planBody, &plan)
	if len(plan.Steps) == 0 || plan.Steps[len(plan.Steps)-1].Step != "f1040_payments" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestJWTRequiredWhenConfigured(t *testing.T) {
	secret := "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	health, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", health.StatusCode)
	}
	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
	bad, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns", nil, map[string]string{"Authorization": "Bearer nope"})
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", bad.StatusCode)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "preparer-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + signed}
	ok, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/returns", filerBody(true), headers)
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("compute with token: %d %s", ok.StatusCode, string(body))
	}
	var computed app.ComputeResult
	_ = json.Unmarshal(body, &computed)
	evRes, evBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/returns/"+computed.ID+"/events", nil, headers)
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", evRes.StatusCode, string(evBody))
	}
	var evts EventListResponse
	_ = json.Unmarshal(evBody, &evts)
	if len(evts.Items) == 0 || evts.Items[0].ActorID != "preparer-1" {
		t.Fatalf("expected events attributed to token subject, got %+v", evts.Items)
	}
}

func TestComputePriorOfAnotherFiler(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	other := filerBody(true)
	other["input"].(map[string]any)["ssn"] = "987-65-4321"
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/returns", other, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("compute status %d: %s", res.StatusCode, string(data))
	}
	var saved app.ComputeResult
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	body := filerBody(false)
	body["tax_year"] = 2021
	body["prior_id"] = saved.ID
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/returns", body, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "prior_mismatch" {
		t.Fatalf("expected prior_mismatch, got %+v", env.Error)
	}
}

func TestDocsAndOpenAPIUnderBasePath(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	docs, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/docs", nil, nil)
	if docs.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("/v0/openapi.json")) {
		t.Fatalf("docs status %d: %s", docs.StatusCode, string(body))
	}

	var wg sync.WaitGroup
	specs := make([][]byte, 8)
	for i := range specs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v0/openapi.json", nil)
			res, err := client.Do(req)
			if err != nil {
				return
			}
			defer res.Body.Close()
			if res.StatusCode == http.StatusOK {
				specs[i], _ = io.ReadAll(res.Body)
			}
		}(i)
	}
	wg.Wait()
	for i, spec := range specs {
		if len(spec) == 0 || !bytes.Equal(spec, specs[0]) {
			t.Fatalf("openapi response %d differs or is empty", i)
		}
	}
	var oas map[string]any
	if err := json.Unmarshal(specs[0], &oas); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if _, ok := oas["paths"].(map[string]any)["/v0/returns"]; !ok {
		t.Fatalf("openapi misses /v0/returns")
	}
}

func TestHealthReportsSchema(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var health HealthResponse
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != "ok" || health.SchemaVersion != 1 || health.SchemaMigration != "0001_init.sql" {
		t.Fatalf("unexpected health %+v", health)
	}
}
