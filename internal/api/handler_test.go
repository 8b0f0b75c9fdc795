package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/forgestack/forge/internal/directory/memory"
	"github.com/forgestack/forge/internal/domain"
	"github.com/forgestack/forge/internal/forge"
	"github.com/forgestack/forge/internal/webconfig"
)

// nopTracker satisfies the tracker interface without a live Redmine
type nopTracker struct{}

func (nopTracker) CreateProject(context.Context, *domain.Project) error  { return nil }
func (nopTracker) UpdateProject(context.Context, *domain.Project) error  { return nil }
func (nopTracker) DeleteProject(context.Context, string) error           { return nil }
func (nopTracker) HideProject(context.Context, string) error             { return nil }
func (nopTracker) CreateUser(context.Context, *domain.User, string) error { return nil }
func (nopTracker) UpdateUser(context.Context, *domain.User) error        { return nil }
func (nopTracker) DeleteUser(context.Context, string) error              { return nil }
func (nopTracker) AddMember(context.Context, string, string) error       { return nil }
func (nopTracker) AddAdmin(context.Context, string, string) error        { return nil }
func (nopTracker) RemoveMember(context.Context, string, string) error    { return nil }
func (nopTracker) RemoveAdmin(context.Context, string, string) error     { return nil }

type nopMaterializer struct{}

func (nopMaterializer) Create(context.Context, domain.Repository, string) error { return nil }
func (nopMaterializer) Remove(context.Context, domain.Repository, string) error { return nil }
func (nopMaterializer) Exists(context.Context, domain.Repository, string) (bool, error) {
	return false, nil
}

type nopRunner struct{}

func (nopRunner) Run(context.Context, string) (string, string, error) { return "", "", nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	o := forge.New(
		memory.NewMemoryDirectory(),
		webconfig.NewGenerator(t.TempDir()),
		nopTracker{},
		nopMaterializer{},
		nopRunner{},
		forge.Options{
			RestartCommand:  "/etc/init.d/ssh restart",
			SuperadminGroup: "superadmins",
			Logger:          zerolog.Nop(),
		},
	)
	return SetupRoutes(NewHandler(o))
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, router *gin.Engine, uid string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{
		"uid":      uid,
		"name":     uid,
		"surname":  "Tester",
		"email":    uid + "@example.com",
		"password": "pw",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user %s: status %d: %s", uid, w.Code, w.Body.String())
	}
}

func TestUserLifecycle(t *testing.T) {
	router := newTestRouter(t)

	createUser(t, router, "alice")

	w := doJSON(t, router, http.MethodGet, "/api/v1/users/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get user: status %d", w.Code)
	}
	var resp struct {
		Data domain.User `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Email != "alice@example.com" {
		t.Errorf("email = %q", resp.Data.Email)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/users/alice", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete user: status %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/users/alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted user: status %d, want 404", w.Code)
	}
}

func TestDuplicateEmailConflicts(t *testing.T) {
	router := newTestRouter(t)

	createUser(t, router, "alice")
	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{
		"uid":      "alice2",
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "pw",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate email: status %d, want 409", w.Code)
	}
}

func TestEditRouteKeepsLock(t *testing.T) {
	router := newTestRouter(t)

	createUser(t, router, "alice")
	w := doJSON(t, router, http.MethodPost, "/api/v1/users/alice/lock", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("lock: status %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/v1/users/alice", map[string]string{
		"name":    "Alicia",
		"surname": "Tester",
		"email":   "alice@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("edit: status %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/alice", nil)
	var resp struct {
		Data domain.User `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.Locked {
		t.Error("edit via the API unlocked the user")
	}
}

func TestMissingFieldsRejected(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{"uid": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete body: status %d, want 400", w.Code)
	}
}

func TestProjectRoutes(t *testing.T) {
	router := newTestRouter(t)

	createUser(t, router, "alice")
	createUser(t, router, "bob")

	w := doJSON(t, router, http.MethodPost, "/api/v1/projects", map[string]interface{}{
		"cn":          "acme",
		"description": "Acme project",
		"first_admin": "alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project: status %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/projects/acme/members", map[string]string{"uid": "bob"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("add member: status %d: %s", w.Code, w.Body.String())
	}

	// The sole admin cannot lose the role
	w = doJSON(t, router, http.MethodDelete, "/api/v1/projects/acme/admins/alice", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("remove sole admin: status %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/projects/acme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get project: status %d", w.Code)
	}
	var resp struct {
		Data domain.Project `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.HasMember("bob") || !resp.Data.HasAdmin("alice") {
		t.Errorf("project = %+v", resp.Data)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/projects/acme", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete project: status %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/projects/acme", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted project: status %d, want 404", w.Code)
	}
}

func TestBootstrapRoute(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/bootstrap", map[string]string{
		"uid":      "root",
		"password": "root-pw",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("bootstrap: status %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/projects/superadmins", nil)
	if w.Code != http.StatusOK {
		t.Errorf("superadmins project missing: status %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: status %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}
