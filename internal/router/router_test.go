package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/handler"
	mw "github.com/larscolombia/kapa/internal/middleware"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
	"github.com/larscolombia/kapa/internal/service"
)

const testSecret = "router-test-secret"

type fakeUsers map[string]*models.User

func (f fakeUsers) Create(_ context.Context, u *models.User) error {
	f[u.ID] = u
	return nil
}

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f fakeUsers) List(context.Context, models.Role, repository.Page) ([]models.User, int, error) {
	return nil, 0, nil
}

func (f fakeUsers) Update(_ context.Context, u *models.User) error {
	f[u.ID] = u
	return nil
}

func (f fakeUsers) SetPassword(_ context.Context, id, hash string) error {
	f[id].PasswordHash = hash
	return nil
}

type fakeMaestros struct {
	items map[string]*models.Maestro
}

func (f *fakeMaestros) Create(_ context.Context, m *models.Maestro) error {
	for _, it := range f.items {
		if it.Category == m.Category && it.Code == m.Code {
			return repository.ErrDuplicate
		}
	}
	m.ID = m.Category + "-" + m.Code
	f.items[m.ID] = m
	return nil
}

func (f *fakeMaestros) Get(_ context.Context, id string) (*models.Maestro, error) {
	if m, ok := f.items[id]; ok {
		return m, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMaestros) List(_ context.Context, category string, activeOnly bool) ([]models.Maestro, error) {
	var out []models.Maestro
	for _, m := range f.items {
		if m.Category == category && (!activeOnly || m.Active) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMaestros) Categories(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, m := range f.items {
		if !seen[m.Category] {
			seen[m.Category] = true
			out = append(out, m.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeMaestros) ActiveCode(_ context.Context, category, code string) (bool, error) {
	m, ok := f.items[category+"-"+code]
	return ok && m.Active, nil
}

func (f *fakeMaestros) Update(_ context.Context, m *models.Maestro) error {
	f.items[m.ID] = m
	return nil
}

// perms grants permissions per role; admins pass RequirePermission anyway.
type perms map[models.Role][]string

func (p perms) HasPermission(_ context.Context, role models.Role, perm string) (bool, error) {
	for _, have := range p[role] {
		if have == perm {
			return true, nil
		}
	}
	return false, nil
}

type testServer struct {
	*httptest.Server
	users fakeUsers
}

func newTestServer(t *testing.T, ping func(context.Context) error) *testServer {
	t.Helper()
	hash, err := auth.HashPassword("s3cret!")
	require.NoError(t, err)
	users := fakeUsers{
		"u-admin": {ID: "u-admin", Email: "admin@kapa.local", Name: "Admin", Role: models.RoleAdmin, PasswordHash: hash, Active: true},
		"u-con":   {ID: "u-con", Email: "con@acme.co", Name: "Con", Role: models.RoleContractor, ContractorID: models.StrPtr("c1"), PasswordHash: hash, Active: true},
		"u-off":   {ID: "u-off", Email: "off@acme.co", Name: "Off", Role: models.RoleClient, PasswordHash: hash, Active: false},
		"u-cli":   {ID: "u-cli", Email: "cli@owner.co", Name: "Cli", Role: models.RoleClient, ClientID: models.StrPtr("cl1"), PasswordHash: hash, Active: true},
	}

	maestros := service.NewMaestroService(&fakeMaestros{items: map[string]*models.Maestro{}})
	ilv := service.NewIlvService(service.IlvDeps{Signer: auth.NewCloseSigner("close-secret")})

	h := Handlers{
		Auth:       handler.NewAuthHandler(service.NewAuthService(users, testSecret, time.Hour)),
		Admin:      handler.NewAdminHandler(nil, nil),
		Org:        handler.NewOrgHandler(nil),
		Compliance: handler.NewComplianceHandler(nil),
		Ilv:        handler.NewIlvHandler(ilv),
		Forms:      handler.NewFormHandler(nil),
		Subs:       handler.NewSubmissionHandler(nil, nil),
		Files:      handler.NewFileHandler(nil),
		Maestros:   handler.NewMaestroHandler(maestros),
		Dashboard:  handler.NewDashboardHandler(nil),
	}
	cfg := Config{
		JWTSecret: testSecret,
		Origins:   []string{"*"},
		Permissions: perms{
			models.RoleContractor: {models.PermILVCreate},
			models.RoleClient:     {models.PermDocumentsReview},
		},
		CloseLimiter: mw.NewRateLimiter(1, 3),
		Ping:         ping,
	}
	srv := httptest.NewServer(New(cfg, h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, users: users}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, time.Hour, s.users[userID])
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	ok := newTestServer(t, func(context.Context) error { return nil })
	resp, body := ok.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	down := newTestServer(t, func(context.Context) error { return errors.New("db gone") })
	resp, _ = down.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/healthz", "", "")

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@kapa.local","password":"s3cret!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)

	resp, body = s.do(t, http.MethodGet, "/api/v1/auth/me", tok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin@kapa.local", body["email"])

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@kapa.local","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"off@acme.co","password":"s3cret!"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["details"])
}

func TestAuthenticatedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, nil)

	resp, _ := s.do(t, http.MethodGet, "/api/v1/maestros", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/maestros", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMaestroPermissions(t *testing.T) {
	s := newTestServer(t, nil)
	admin, con := s.token(t, "u-admin"), s.token(t, "u-con")

	resp, _ := s.do(t, http.MethodPost, "/api/v1/maestros", con, `{"category":"severity","code":"alta","label":"Alta"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/v1/maestros", admin, `{"category":"severity","code":"alta","label":"Alta"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["active"])
	id, _ := body["id"].(string)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/maestros", admin, `{"category":"severity","code":"alta","label":"Otra"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/maestros", admin, `{"category":"Severity","code":"Alta!","label":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/maestros/items/"+id, admin, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// the contractor can still read, but deactivated entries are hidden
	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/v1/maestros/severity", nil)
	req.Header.Set("Authorization", "Bearer "+con)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	var items []models.Maestro
	require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
	assert.Empty(t, items)
}

func TestRolesAreAdminOnly(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := s.do(t, http.MethodGet, "/api/v1/roles", s.token(t, "u-con"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDocumentExclusionIsAdminOnly(t *testing.T) {
	s := newTestServer(t, nil)
	client, con := s.token(t, "u-cli"), s.token(t, "u-con")

	for _, path := range []string{"/api/v1/documents/d1/not-applicable", "/api/v1/documents/d1/reset"} {
		resp, _ := s.do(t, http.MethodPost, path, client, `{"comment":"no aplica"}`)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)

		resp, _ = s.do(t, http.MethodPost, path, con, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
}

func TestPublicCloseLinkRejectsBadTokenAndIsRateLimited(t *testing.T) {
	s := newTestServer(t, nil)

	statuses := map[int]int{}
	for i := 0; i < 6; i++ {
		resp, _ := s.do(t, http.MethodGet, "/api/v1/public/ilv/close/not-a-jwt", "", "")
		statuses[resp.StatusCode]++
	}
	assert.GreaterOrEqual(t, statuses[http.StatusUnauthorized], 1)
	assert.GreaterOrEqual(t, statuses[http.StatusTooManyRequests], 1)
}
