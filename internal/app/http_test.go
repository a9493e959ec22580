package app

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"trackline/api/internal/store"
)

func newTestServer(t *testing.T, fs *fakeStore) (*HTTPServer, *Service) {
	t.Helper()
	svc := newTestService(fs)
	return NewHTTPServer(svc, "*"), svc
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func loginAs(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("CreateSession(%s) error = %v", userID, err)
	}
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["ok"] != true {
		t.Fatalf("unexpected health payload: %v", payload)
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	fs := scenarioStore()
	fs.pingFn = func(context.Context) error { return context.DeadlineExceeded }
	server, _ := newTestServer(t, fs)

	recorder := doRequest(t, server, http.MethodGet, "/api/ready", "", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", recorder.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())

	for _, path := range []string{"/api/folders", "/api/dashboards", "/api/tasks", "/api/me"} {
		recorder := doRequest(t, server, http.MethodGet, path, "", "")
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token = %d, want 401", path, recorder.Code)
		}
		if payload := decodeResponse(t, recorder); payload["code"] != "UNAUTHORIZED" {
			t.Fatalf("unexpected error payload for %s: %v", path, payload)
		}
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/folders", "not-a-token", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestListFoldersFiltersByAccess(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "bob")

	recorder := doRequest(t, server, http.MethodGet, "/api/folders", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	folders := payload["folders"].([]any)
	// bob's grant on q1 covers q1 and launch only.
	if len(folders) != 2 {
		t.Fatalf("bob should see 2 folders, got %d: %v", len(folders), folders)
	}
}

func TestFolderTasksEndpoint(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "bob")

	recorder := doRequest(t, server, http.MethodGet, "/api/folders/q1/tasks", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	tasks := payload["tasks"].([]any)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 consolidated tasks, got %d", len(tasks))
	}

	first := tasks[0].(map[string]any)
	status := first["status"].(map[string]any)
	if _, ok := status["progress"]; !ok {
		t.Fatalf("task status missing progress: %v", status)
	}
}

func TestForbiddenFolderLooksLikeMissingForMembers(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	bobToken := loginAs(t, svc, "bob")

	hidden := doRequest(t, server, http.MethodGet, "/api/folders/q2/tasks", bobToken, "")
	missing := doRequest(t, server, http.MethodGet, "/api/folders/ghost/tasks", bobToken, "")

	if hidden.Code != http.StatusForbidden || missing.Code != http.StatusForbidden {
		t.Fatalf("expected uniform 403, got %d and %d", hidden.Code, missing.Code)
	}
	if hidden.Body.String() != missing.Body.String() {
		t.Fatalf("denial bodies must be indistinguishable: %q vs %q", hidden.Body.String(), missing.Body.String())
	}
}

func TestAdminSeesTrueNotFound(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	adminToken := loginAs(t, svc, "zed")

	recorder := doRequest(t, server, http.MethodGet, "/api/folders/ghost/tasks", adminToken, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("admin missing folder = %d, want 404", recorder.Code)
	}
}

func TestCreateFolderEndpoint(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "alice")

	recorder := doRequest(t, server, http.MethodPost, "/api/folders", token, `{"name":"Q3","parentId":"root"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["name"] != "Q3" || payload["parentId"] != "root" {
		t.Fatalf("unexpected folder payload: %v", payload)
	}
	if payload["ownerId"] != "alice" {
		t.Fatalf("creator should own the folder, got %v", payload["ownerId"])
	}
}

func TestCreateFolderValidation(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "alice")

	recorder := doRequest(t, server, http.MethodPost, "/api/folders", token, `{"name":"   "}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
}

func TestPublicShareUnknownTokenIs404(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())

	unknown := doRequest(t, server, http.MethodGet, "/share/definitely-not-a-token", "", "")
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("unknown share token = %d, want 404", unknown.Code)
	}
}

func TestPublicShareResolvesSubtreeWithoutIdentity(t *testing.T) {
	fs := scenarioStore()
	token := "pub-token-1"
	fs.folders[1].IsPublic = true
	fs.folders[1].ShareToken = &token
	server, _ := newTestServer(t, fs)

	recorder := doRequest(t, server, http.MethodGet, "/share/pub-token-1", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)

	folder := payload["folder"].(map[string]any)
	if folder["id"] != "q1" {
		t.Fatalf("expected shared folder q1, got %v", folder["id"])
	}
	if _, leaked := folder["ownerId"]; leaked {
		t.Fatal("public payload must not carry owner identity")
	}

	dashboards := payload["dashboards"].([]any)
	if len(dashboards) != 2 {
		t.Fatalf("expected q1+launch dashboards, got %d", len(dashboards))
	}
	for _, raw := range dashboards {
		d := raw.(map[string]any)
		if _, ok := d["settings"]; !ok {
			t.Fatalf("public dashboard missing embedded settings: %v", d)
		}
		for _, rawTask := range d["tasks"].([]any) {
			task := rawTask.(map[string]any)
			status := task["status"].(map[string]any)
			if _, ok := status["progress"]; !ok {
				t.Fatalf("public task missing normalized progress: %v", task)
			}
		}
	}

	if recorder.Body.String() != "" && strings.Contains(recorder.Body.String(), "alice") {
		t.Fatal("public payload leaked an account identifier")
	}
}

func TestShareTokenGrantsNothingElse(t *testing.T) {
	fs := scenarioStore()
	token := "pub-token-1"
	fs.folders[1].IsPublic = true
	fs.folders[1].ShareToken = &token
	server, _ := newTestServer(t, fs)

	recorder := doRequest(t, server, http.MethodGet, "/api/folders", "pub-token-1", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("share token must not work as a bearer token, got %d", recorder.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "alice")

	recorder := doRequest(t, server, http.MethodGet, "/api/nope", token, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())
	recorder := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID response header")
	}
}

func TestCORSHeadersSet(t *testing.T) {
	server, _ := newTestServer(t, scenarioStore())
	recorder := doRequest(t, server, http.MethodOptions, "/api/folders", "", "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS status = %d, want 204", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS origin header")
	}
}

func TestTaskIDMustBeNumeric(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "alice")

	recorder := doRequest(t, server, http.MethodDelete, "/api/tasks/not-a-number", token, "")
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
}

func TestMapErrorClassifiesStoreUnreachable(t *testing.T) {
	for _, err := range []error{
		&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
		driver.ErrBadConn,
		fmt.Errorf("list tasks: %w", syscall.ECONNRESET),
	} {
		status, code, _, _ := mapError(err)
		if status != http.StatusServiceUnavailable || code != "TRANSIENT" {
			t.Fatalf("mapError(%v) = %d %s, want 503 TRANSIENT", err, status, code)
		}
	}
}

func TestStoreOutageIsTransient(t *testing.T) {
	fs := scenarioStore()
	fs.listTasksFn = func(context.Context, []string) ([]store.Task, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	server, svc := newTestServer(t, fs)
	token := loginAs(t, svc, "alice")

	recorder := doRequest(t, server, http.MethodGet, "/api/tasks", token, "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	if payload := decodeResponse(t, recorder); payload["code"] != "TRANSIENT" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestSearchRejectsNegativePaging(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())
	token := loginAs(t, svc, "alice")

	for _, query := range []string{"limit=-1", "offset=-5"} {
		recorder := doRequest(t, server, http.MethodGet, "/api/search?q=plan&"+query, token, "")
		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s status = %d, want 422", query, recorder.Code)
		}
		if payload := decodeResponse(t, recorder); payload["code"] != "VALIDATION_ERROR" {
			t.Fatalf("unexpected payload for %s: %v", query, payload)
		}
	}
}

func TestUpdateUserRoleEndpointAdminOnly(t *testing.T) {
	server, svc := newTestServer(t, scenarioStore())

	memberToken := loginAs(t, svc, "bob")
	recorder := doRequest(t, server, http.MethodPut, "/api/users/alice/role", memberToken, `{"role":"admin"}`)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("member promoting = %d, want 403", recorder.Code)
	}

	adminToken := loginAs(t, svc, "zed")
	recorder = doRequest(t, server, http.MethodPut, "/api/users/alice/role", adminToken, `{"role":"admin"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("admin promoting = %d: %s", recorder.Code, recorder.Body.String())
	}
}
