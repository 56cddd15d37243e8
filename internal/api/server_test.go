package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridianlab/fluidcore/internal/audit"
	"github.com/meridianlab/fluidcore/internal/auth"
	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/infrastructure/config"
	"github.com/meridianlab/fluidcore/internal/infrastructure/logging"
	"github.com/meridianlab/fluidcore/internal/instrument"
	"github.com/meridianlab/fluidcore/internal/runlog"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// okPort is an ActionPort that confirms every action immediately.
type okPort struct{}

func (okPort) Perform(context.Context, instrument.Command) engine.Outcome {
	return engine.Succeeded(0)
}

func (okPort) PerformBatch(context.Context, []instrument.Command) engine.Outcome {
	return engine.Succeeded(0)
}

// testServer creates a Server backed by a stub action port and a temp-file
// SQLite database carrying the full schema.
func testServer(t *testing.T) *Server {
	t.Helper()

	db := setupTestDB(t)

	eng, err := engine.New(engine.Config{
		NumChannels:   8,
		PreloadedTips: []int{0},
		SeedVolumes: map[instrument.WellRef]float64{
			{Plate: "Source", Well: "A1"}: 200,
		},
	}, okPort{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
		},
		InstrumentID: "test-instrument",
		Logger:       log,
		Engine:       eng,
		Runs:         runlog.NewSQLiteRepository(db),
		Users:        auth.NewUserRepository(db),
		Audit:        audit.NewSQLiteRepository(db),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv
}

// setupTestDB creates a temp-file SQLite database with the fluidcore schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "api_test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE runs (
		id             TEXT PRIMARY KEY,
		instrument_id  TEXT NOT NULL,
		source         TEXT NOT NULL,
		status         TEXT NOT NULL,
		commands_total INTEGER NOT NULL DEFAULT 0,
		completed      INTEGER NOT NULL DEFAULT 0,
		clock_ms       INTEGER NOT NULL DEFAULT 0,
		cause          TEXT,
		created_at     TEXT NOT NULL,
		completed_at   TEXT
	);
	CREATE TABLE run_entries (
		run_id      TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		command     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		cause       TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		clock_ms    INTEGER NOT NULL DEFAULT 0,
		state       TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE TABLE users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL,
		email         TEXT,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'viewer',
		is_active     INTEGER NOT NULL DEFAULT 1,
		created_by    TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE TABLE audit_logs (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT,
		user_id     TEXT,
		source      TEXT NOT NULL,
		details     TEXT,
		created_at  TEXT NOT NULL
	);`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	return db
}

// bearerToken mints a JWT for a synthetic user with the given role.
func bearerToken(t *testing.T, role auth.Role) string {
	t.Helper()

	user := &auth.User{ID: "usr-" + string(role), Username: string(role), Role: role}
	token, err := auth.GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return "Bearer " + token
}

// doRequest runs one request through the router with an optional auth header.
func doRequest(t *testing.T, srv *Server, method, path, authHeader, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["instrument"] != "test-instrument" {
		t.Errorf("instrument = %v, want test-instrument", resp["instrument"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

// ─── Authentication and Authorisation ──────────────────────────────

func TestProtectedRoute_NoToken(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_BadScheme(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", "Basic dXNlcjpwYXNz", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestViewerCannotExecute(t *testing.T) {
	srv := testServer(t)

	body := `{"worklist": "W;"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleViewer), body)
	if w.Code != http.StatusForbidden {
		t.Errorf("viewer POST /runs status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestViewerCanReadStatus(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/status", bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("viewer GET /status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["instrument"] != "test-instrument" {
		t.Errorf("instrument = %v, want test-instrument", resp["instrument"])
	}
}

func TestLogin(t *testing.T) {
	srv := testServer(t)

	hash, err := auth.HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	operator := &auth.User{
		Username:     "alex",
		DisplayName:  "Alex",
		PasswordHash: hash,
		Role:         auth.RoleOperator,
		IsActive:     true,
	}
	if err := srv.users.Create(context.Background(), operator); err != nil {
		t.Fatalf("creating test user: %v", err)
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"username": "alex", "password": "correct-horse-battery"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected access token")
	}
	if resp.Role != auth.RoleOperator {
		t.Errorf("role = %q, want operator", resp.Role)
	}

	// The issued token works on protected routes
	w = doRequest(t, srv, http.MethodGet, "/api/v1/status", "Bearer "+resp.AccessToken, "")
	if w.Code != http.StatusOK {
		t.Errorf("status with issued token = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := testServer(t)

	hash, err := auth.HashPassword("right")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &auth.User{Username: "sam", DisplayName: "Sam", PasswordHash: hash, Role: auth.RoleViewer, IsActive: true}
	if err := srv.users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user: %v", err)
	}

	w := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"username": "sam", "password": "wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// Unknown users get the same response as wrong passwords
	w = doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"username": "nobody", "password": "wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Worklist Parsing ──────────────────────────────────────────────

func TestParseWorklist(t *testing.T) {
	srv := testServer(t)

	body := `{"worklist": "A;Source;A1;;50\nD;Dest;B1;;50\nW;"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/worklists/parse", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusOK {
		t.Fatalf("parse status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["count"].(float64)) != 3 {
		t.Errorf("count = %v, want 3", resp["count"])
	}
}

func TestParseWorklist_BadRecord(t *testing.T) {
	srv := testServer(t)

	body := `{"worklist": "A;Source;A1;;50\nX;bogus;record"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/worklists/parse", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("parse status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["line"].(float64)) != 2 {
		t.Errorf("line = %v, want 2", resp["line"])
	}
}

// ─── Run Execution ─────────────────────────────────────────────────

func TestCreateRun_Worklist(t *testing.T) {
	srv := testServer(t)

	// Channel 0 has a preloaded tip and Source:A1 is seeded with 200 uL
	body := `{"worklist": "A;Source;A1;;50\nD;Dest;B1;;50"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp runResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Run.Status != runlog.StatusCompleted {
		t.Errorf("run status = %q, want completed", resp.Run.Status)
	}
	if resp.Run.Completed != 2 {
		t.Errorf("completed = %d, want 2", resp.Run.Completed)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(resp.Entries))
	}

	// The run is persisted and retrievable
	w = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+resp.Run.ID, bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Errorf("get run status = %d, want %d", w.Code, http.StatusOK)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+resp.Run.ID+"/entries", bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("get entries status = %d, want %d", w.Code, http.StatusOK)
	}
	var entries map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if int(entries["count"].(float64)) != 2 {
		t.Errorf("persisted entries = %v, want 2", entries["count"])
	}
}

func TestCreateRun_RejectedPrecondition(t *testing.T) {
	srv := testServer(t)

	// Channel 0's tip is preloaded: a second pickup on it must be rejected
	body := `{"commands": [{"kind": "pickup_tip", "channel": 0}]}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("run status = %d, want %d; body: %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}

	var resp runResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Run.Status != runlog.StatusAborted {
		t.Errorf("run status = %q, want aborted", resp.Run.Status)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Outcome != engine.OutcomeRejected {
		t.Errorf("entries = %+v, want one rejected entry", resp.Entries)
	}
}

func TestCreateRun_BothSources(t *testing.T) {
	srv := testServer(t)

	body := `{"worklist": "W;", "commands": [{"kind": "wash"}]}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateRun_Empty(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleOperator), `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(t)

	body := `{"worklist": "W;"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/runs", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d; body: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/runs?status=completed", bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["total"].(float64)) != 1 {
		t.Errorf("total = %v, want 1", resp["total"])
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-missing", bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Batch Execution ───────────────────────────────────────────────

func TestCreateBatch(t *testing.T) {
	srv := testServer(t)

	body := `{
		"ops": [{"kind": "pickup_tip"}, {"kind": "pickup_tip"}],
		"channels": [2, 3]
	}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/batches", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusOK {
		t.Fatalf("batch status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp batchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Batch.Outcome != engine.OutcomeSuccess {
		t.Errorf("batch outcome = %q, want success", resp.Batch.Outcome)
	}
	if resp.Batch.FailedIndex != -1 {
		t.Errorf("failed index = %d, want -1", resp.Batch.FailedIndex)
	}
}

func TestCreateBatch_Atomic(t *testing.T) {
	srv := testServer(t)

	// Channel 0 already has a tip: the batch must be rejected as one unit
	body := `{
		"ops": [{"kind": "pickup_tip"}, {"kind": "pickup_tip"}],
		"channels": [1, 0]
	}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/batches", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("batch status = %d, want %d; body: %s", w.Code, http.StatusUnprocessableEntity, w.Body.String())
	}

	var resp batchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Batch.Outcome != engine.OutcomeRejected {
		t.Errorf("batch outcome = %q, want rejected", resp.Batch.Outcome)
	}
	if resp.Batch.FailedIndex != 1 {
		t.Errorf("failed index = %d, want 1", resp.Batch.FailedIndex)
	}

	// Channel 1 must not have picked up a tip
	if srv.engine.Status().ChannelTips[1] {
		t.Error("channel 1 mutated by a rejected batch")
	}
}

func TestCreateBatch_LengthMismatch(t *testing.T) {
	srv := testServer(t)

	body := `{"ops": [{"kind": "pickup_tip"}], "channels": [1, 2]}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/batches", bearerToken(t, auth.RoleOperator), body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── User Management ───────────────────────────────────────────────

func TestUsers_AdminOnly(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/users", bearerToken(t, auth.RoleOperator), "")
	if w.Code != http.StatusForbidden {
		t.Errorf("operator GET /users = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/users", bearerToken(t, auth.RoleAdmin), "")
	if w.Code != http.StatusOK {
		t.Errorf("admin GET /users = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCreateUser(t *testing.T) {
	srv := testServer(t)
	admin := bearerToken(t, auth.RoleAdmin)

	body := `{"username": "jo", "display_name": "Jo", "password": "longenough", "role": "operator"}`
	w := doRequest(t, srv, http.MethodPost, "/api/v1/users", admin, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	// Duplicate username conflicts
	w = doRequest(t, srv, http.MethodPost, "/api/v1/users", admin, body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}

	// Short passwords are rejected
	short := `{"username": "kim", "display_name": "Kim", "password": "short", "role": "viewer"}`
	w = doRequest(t, srv, http.MethodPost, "/api/v1/users", admin, short)
	if w.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeleteUser_NotSelf(t *testing.T) {
	srv := testServer(t)

	// The synthetic admin token's subject is "usr-admin"
	w := doRequest(t, srv, http.MethodDelete, "/api/v1/users/usr-admin", bearerToken(t, auth.RoleAdmin), "")
	if w.Code != http.StatusForbidden {
		t.Errorf("self delete status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Audit Trail ───────────────────────────────────────────────────

func TestListAuditLogs(t *testing.T) {
	srv := testServer(t)

	entry := &audit.AuditLog{Action: "execute", EntityType: "run", EntityID: "run-1", UserID: "usr-1", Source: "api"}
	if err := srv.audit.Create(context.Background(), entry); err != nil {
		t.Fatalf("seeding audit entry: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/audit?entity_type=run", bearerToken(t, auth.RoleAdmin), "")
	if w.Code != http.StatusOK {
		t.Fatalf("audit status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}

	// Not visible to operators
	w = doRequest(t, srv, http.MethodGet, "/api/v1/audit", bearerToken(t, auth.RoleOperator), "")
	if w.Code != http.StatusForbidden {
		t.Errorf("operator audit status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── WebSocket Tickets ─────────────────────────────────────────────

func TestWSTicket(t *testing.T) {
	srv := testServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", bearerToken(t, auth.RoleViewer), "")
	if w.Code != http.StatusOK {
		t.Fatalf("ticket status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("expected ticket in response")
	}

	// Tickets are single-use
	entry, ok := srv.validateTicket(ticket)
	if !ok {
		t.Fatal("fresh ticket should validate")
	}
	if entry.userID != "usr-viewer" {
		t.Errorf("ticket user = %q, want usr-viewer", entry.userID)
	}
	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("consumed ticket should not validate again")
	}
}
