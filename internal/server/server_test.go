package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"sitebrief/internal/config"
	"sitebrief/internal/db"
	"sitebrief/internal/engine"
	"sitebrief/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("sitebrief")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.InitProject(context.Background(), cfg.Project.ID, "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	if err := e.Repo.UpsertProjectConfig(context.Background(), cfg.Project.ID, cfg); err != nil {
		t.Fatalf("seed project config: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
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
	req.Header.Set("X-Actor-Id", "tester")
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

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestBriefingGetCreatesDraft(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get briefing status %d: %s", res.StatusCode, string(data))
	}
	var b BriefingResponse
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("unmarshal briefing: %v", err)
	}
	if b.Status != "draft" || b.Date != "2025-06-24" {
		t.Fatalf("unexpected briefing: %+v", b)
	}

	res2, data2 := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24", nil, nil)
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("second get status %d: %s", res2.StatusCode, string(data2))
	}
	var again BriefingResponse
	_ = json.Unmarshal(data2, &again)
	if again.ID != b.ID {
		t.Fatalf("expected idempotent briefing, got %s then %s", b.ID, again.ID)
	}
}

func TestActivityFlowWithResolvedContractors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/contractors", map[string]any{
		"name":  "Volt Electric",
		"trade": "electrical",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create contractor status %d: %s", res.StatusCode, string(data))
	}
	var contractor ContractorResponse
	if err := json.Unmarshal(data, &contractor); err != nil {
		t.Fatalf("unmarshal contractor: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24/activities", map[string]any{
		"title":          "panel upgrade",
		"area":           "A-Wing",
		"priority":       "critical",
		"labor_count":    5,
		"contractor_ids": []string{contractor.ID, "ghost-id"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create activity status %d: %s", res.StatusCode, string(data))
	}
	var created ActivityResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if len(created.ContractorIDs) != 1 || created.ContractorIDs[0] != contractor.ID {
		t.Fatalf("expected unresolvable ids filtered at write, got %v", created.ContractorIDs)
	}
	if len(created.Contractors) != 1 || created.Contractors[0].Name != "Volt Electric" {
		t.Fatalf("expected resolved contractor ref, got %v", created.Contractors)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24/activities", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list activities status %d: %s", res.StatusCode, string(data))
	}
	var items []ActivityResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("unexpected listing: %+v", items)
	}
}

func TestErrorEnvelopeCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/contractors", map[string]any{
		"name":  "Volt Electric",
		"trade": "electrical",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("seed contractor: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/contractors", map[string]any{
		"name":  "volt electric",
		"trade": "electrical",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "duplicate_name" {
		t.Fatalf("expected duplicate_name, got %s", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24/activities", map[string]any{
		"title":       "pour slab",
		"labor_count": -2,
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/copy", map[string]any{
		"source_date": "2025-06-20",
		"target_date": "2025-06-21",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "no_source_data" {
		t.Fatalf("expected no_source_data, got %s", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/sitebrief/activities/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %s", env.Error.Code)
	}
}

func TestCopyDay(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, title := range []string{"pour slab", "strip forms"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/2025-06-24/activities", map[string]any{
			"title":       title,
			"labor_count": 3,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("seed activity: %d %s", res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/copy", map[string]any{
		"source_date": "2025-06-24",
		"target_date": "2025-06-25",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("copy status %d: %s", res.StatusCode, string(data))
	}
	var copied CopyDayResponse
	if err := json.Unmarshal(data, &copied); err != nil {
		t.Fatalf("unmarshal copy response: %v", err)
	}
	if copied.CopiedCount != 2 {
		t.Fatalf("expected 2 copied, got %d", copied.CopiedCount)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/sitebrief/briefings/copy", map[string]any{
		"source_date": "2025-06-24",
		"target_date": "2025-06-25",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on repeat copy, got %d: %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "target_not_empty" {
		t.Fatalf("expected target_not_empty, got %s", env.Error.Code)
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/projects/sitebrief/contractors", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestWebhookDispatcherStopsOnCancel(t *testing.T) {
	d := &webhookDispatcher{
		client:  &http.Client{},
		cursors: map[int]int64{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatcher did not stop after cancel")
	}
}

func TestDevLoginBearerRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/auth/dev/login", bytes.NewReader([]byte(`{"actor_id":"site-lead"}`)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("dev login: %v", err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}

	res2, data2 := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res2.StatusCode, string(data2))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data2, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "site-lead" || who.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", who)
	}
}
