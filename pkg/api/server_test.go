package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/auth"
	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
	"github.com/dd0wney/cluso-flowscan/pkg/metrics"
	"github.com/dd0wney/cluso-flowscan/pkg/report"
)

const ingestCSV = `StartTime,Dur,Proto,SrcAddr,Sport,Dir,DstAddr,Dport,State,sTos,dTos,TotPkts,TotBytes,SrcBytes,Label
2011/08/16 10:30:05.000000,1.0,tcp,10.0.0.1,1025,->,10.0.0.2,80,S_,0,0,6,566,342,flow=Background
2011/08/16 10:30:10.000000,15.0,icmp,10.0.0.2,,->,10.0.0.1,,ECO,0,0,2,196,98,flow=Botnet
`

func beaconGraph(t *testing.T) *flowgraph.Graph {
	t.Helper()
	g := flowgraph.NewGraph()
	edges := []flow.Edge{
		{SourceID: "10.0.0.1", TargetID: "10.0.0.2", StartTime: 0, Duration: 1, Protocol: "tcp"},
		{SourceID: "10.0.0.2", TargetID: "10.0.0.1", StartTime: 5000000, Duration: 15, Protocol: "icmp"},
	}
	for _, e := range edges {
		if _, err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}
	return g
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{
			Metrics: metrics.NewRegistry(),
		})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("unmarshal response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})
	var resp HealthResponse
	rec := doJSON(t, srv.Handler(), "GET", "/health", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Status != "healthy" {
		t.Errorf("unexpected status %q", resp.Status)
	}
	if resp.Graph.EdgeCount != 2 {
		t.Errorf("expected 2 edges in health, got %d", resp.Graph.EdgeCount)
	}
}

func TestScanDefaults(t *testing.T) {
	srv := newTestServer(t, Config{})
	var resp ScanResponse
	rec := doJSON(t, srv.Handler(), "POST", "/api/v1/scan", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.MatchCount != 1 {
		t.Errorf("expected 1 match, got %d", resp.MatchCount)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].A != "10.0.0.1" {
		t.Errorf("unexpected match table: %+v", resp.Matches)
	}
	if resp.VisitedEdges < 2 {
		t.Errorf("expected visited >= 2, got %d", resp.VisitedEdges)
	}
	if resp.RunID == "" {
		t.Error("run ID missing")
	}
}

func TestScanCustomConstraints(t *testing.T) {
	srv := newTestServer(t, Config{})
	var resp ScanResponse
	rec := doJSON(t, srv.Handler(), "POST", "/api/v1/scan",
		ScanRequest{ProtoSecond: "udp"}, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.MatchCount != 0 {
		t.Errorf("expected 0 matches with udp return leg, got %d", resp.MatchCount)
	}
}

func TestScanInvalidConstraint(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv.Handler(), "POST", "/api/v1/scan",
		ScanRequest{DurationRatioMin: -5}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestThenScan(t *testing.T) {
	engine := matcher.NewEngine(flowgraph.NewGraph(), matcher.EngineConfig{
		Metrics: metrics.NewRegistry(),
	})
	srv := newTestServer(t, Config{Engine: engine})
	handler := srv.Handler()

	req := httptest.NewRequest("POST", "/api/v1/ingest", strings.NewReader(ingestCSV))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d %s", rec.Code, rec.Body.String())
	}
	var ingest IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ingest); err != nil {
		t.Fatalf("bad ingest response: %v", err)
	}
	if ingest.Loaded != 2 {
		t.Errorf("expected 2 rows loaded, got %d", ingest.Loaded)
	}

	var scan ScanResponse
	rec = doJSON(t, handler, "POST", "/api/v1/scan", nil, &scan)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan failed: %d", rec.Code)
	}
	if scan.MatchCount != 1 {
		t.Errorf("expected 1 match after ingest, got %d", scan.MatchCount)
	}

	// The first scan froze the graph; further ingests are refused.
	req = httptest.NewRequest("POST", "/api/v1/ingest", strings.NewReader(ingestCSV))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for post-freeze ingest, got %d", rec.Code)
	}
}

func TestGraphStats(t *testing.T) {
	srv := newTestServer(t, Config{})
	var resp StatsResponse
	rec := doJSON(t, srv.Handler(), "GET", "/api/v1/graph/stats", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Graph.NodeCount != 2 || resp.Graph.EdgeCount != 2 {
		t.Errorf("unexpected stats: %+v", resp.Graph)
	}
	if resp.Frozen {
		t.Error("graph should not be frozen before any scan")
	}
}

func TestReportsLifecycle(t *testing.T) {
	store := report.NewMemStore()
	srv := newTestServer(t, Config{Store: store})
	handler := srv.Handler()

	var scan ScanResponse
	rec := doJSON(t, handler, "POST", "/api/v1/scan",
		ScanRequest{Save: true, Dataset: "capture-10"}, &scan)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan failed: %d", rec.Code)
	}

	var reports []*report.ScanReport
	rec = doJSON(t, handler, "GET", "/api/v1/reports", nil, &reports)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	if len(reports) != 1 || reports[0].Dataset != "capture-10" {
		t.Fatalf("unexpected report list: %+v", reports)
	}

	var got report.ScanReport
	rec = doJSON(t, handler, "GET", "/api/v1/reports/"+reports[0].ID.String(), nil, &got)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rec.Code)
	}
	if got.MatchCount != 1 {
		t.Errorf("expected 1 match in report, got %d", got.MatchCount)
	}

	rec = doJSON(t, handler, "DELETE", "/api/v1/reports/"+reports[0].ID.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	rec = doJSON(t, handler, "GET", "/api/v1/reports/"+got.ID.String(), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestReportsUnconfigured(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv.Handler(), "GET", "/api/v1/reports", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a store, got %d", rec.Code)
	}
}

func TestAuthProtectedScan(t *testing.T) {
	jwtManager, err := auth.NewJWTManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	users := auth.NewUserStore()
	if _, err := users.CreateUser("analyst1", "password123", auth.RoleAnalyst); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := users.CreateUser("viewer1", "password123", auth.RoleViewer); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	srv := newTestServer(t, Config{JWTManager: jwtManager, UserStore: users})
	handler := srv.Handler()

	// No token: rejected.
	rec := doJSON(t, handler, "POST", "/api/v1/scan", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Login, then scan with the token.
	var login LoginResponse
	rec = doJSON(t, handler, "POST", "/api/v1/auth/login",
		LoginRequest{Username: "analyst1", Password: "password123"}, &login)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec2.Code, rec2.Body.String())
	}

	// Viewer role cannot scan.
	var viewerLogin LoginResponse
	rec = doJSON(t, handler, "POST", "/api/v1/auth/login",
		LoginRequest{Username: "viewer1", Password: "password123"}, &viewerLogin)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer login failed: %d", rec.Code)
	}
	req = httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer "+viewerLogin.Token)
	rec2 = httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer, got %d", rec2.Code)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	jwtManager, err := auth.NewJWTManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	users := auth.NewUserStore()
	if _, err := users.CreateUser("analyst1", "password123", auth.RoleAnalyst); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	srv := newTestServer(t, Config{JWTManager: jwtManager, UserStore: users})

	rec := doJSON(t, srv.Handler(), "POST", "/api/v1/auth/login",
		LoginRequest{Username: "analyst1", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", rec.Code)
	}
	rec = doJSON(t, srv.Handler(), "POST", "/api/v1/auth/login",
		LoginRequest{Username: "ghost", Password: "password123"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", rec.Code)
	}
}

func TestGraphQLEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})
	body := []byte(`{"query":"{ twoCycles { matchCount } }"}`)
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("graphql failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"matchCount":1`) {
		t.Errorf("unexpected graphql body: %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := doJSON(t, srv.Handler(), "DELETE", "/api/v1/scan", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

// authTestServer builds a server with token auth, an API key store,
// and one admin user, returning the handler plus an admin bearer token.
func authTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	jwtManager, err := auth.NewJWTManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager failed: %v", err)
	}
	users := auth.NewUserStore()
	if _, err := users.CreateUser("admin1", "password123", auth.RoleAdmin); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	keys, err := auth.NewAPIKeyStore([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewAPIKeyStore failed: %v", err)
	}

	srv := newTestServer(t, Config{JWTManager: jwtManager, UserStore: users, APIKeys: keys})
	handler := srv.Handler()

	var login LoginResponse
	rec := doJSON(t, handler, "POST", "/api/v1/auth/login",
		LoginRequest{Username: "admin1", Password: "password123"}, &login)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login failed: %d %s", rec.Code, rec.Body.String())
	}
	return handler, login.Token
}

func issueKey(t *testing.T, handler http.Handler, adminToken, label, role string) CreateKeyResponse {
	t.Helper()
	body, _ := json.Marshal(CreateKeyRequest{Label: label, Role: role})
	req := httptest.NewRequest("POST", "/api/v1/auth/keys", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("key creation failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp CreateKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal key response: %v", err)
	}
	if resp.Key == "" || resp.APIKey == nil {
		t.Fatalf("incomplete key response: %s", rec.Body.String())
	}
	return resp
}

func TestAPIKeyScan(t *testing.T) {
	handler, adminToken := authTestServer(t)

	issued := issueKey(t, handler, adminToken, "pipeline", auth.RoleAnalyst)

	// The key authenticates a scan.
	req := httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", issued.Key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with API key, got %d: %s", rec.Code, rec.Body.String())
	}

	// A garbage key is rejected.
	req = httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", "fsc_test_not-a-real-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bogus key, got %d", rec.Code)
	}
}

func TestAPIKeyRoleEnforced(t *testing.T) {
	handler, adminToken := authTestServer(t)

	viewer := issueKey(t, handler, adminToken, "dashboard", auth.RoleViewer)

	req := httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", viewer.Key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer key on scan, got %d", rec.Code)
	}
}

func TestAPIKeyRevocation(t *testing.T) {
	handler, adminToken := authTestServer(t)

	issued := issueKey(t, handler, adminToken, "temp", auth.RoleAnalyst)

	req := httptest.NewRequest("DELETE", "/api/v1/auth/keys/"+issued.APIKey.ID, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("revocation failed: %d %s", rec.Code, rec.Body.String())
	}

	// The revoked key no longer authenticates.
	req = httptest.NewRequest("POST", "/api/v1/scan", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-API-Key", issued.Key)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked key, got %d", rec.Code)
	}

	// Revoking an unknown ID is a 404.
	req = httptest.NewRequest("DELETE", "/api/v1/auth/keys/no-such-key", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown key ID, got %d", rec.Code)
	}
}

func TestAPIKeyManagementAdminOnly(t *testing.T) {
	handler, adminToken := authTestServer(t)

	analyst := issueKey(t, handler, adminToken, "worker", auth.RoleAnalyst)

	// An analyst key cannot mint new keys.
	body, _ := json.Marshal(CreateKeyRequest{Label: "sneaky", Role: auth.RoleAdmin})
	req := httptest.NewRequest("POST", "/api/v1/auth/keys", bytes.NewReader(body))
	req.Header.Set("X-API-Key", analyst.Key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for analyst creating keys, got %d", rec.Code)
	}

	// Listing reports issued keys to the admin, without key material.
	req = httptest.NewRequest("GET", "/api/v1/auth/keys", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("key listing failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"label":"worker"`) {
		t.Errorf("expected issued key in listing: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), analyst.Key) {
		t.Error("key listing must not expose plaintext key material")
	}
}
