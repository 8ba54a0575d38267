package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labwatch/labwatch/internal/auth"
	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/driver"
	"github.com/labwatch/labwatch/internal/maintenance"
	"github.com/labwatch/labwatch/internal/model"
	"github.com/labwatch/labwatch/internal/status"
	"github.com/labwatch/labwatch/internal/store"
	"github.com/labwatch/labwatch/internal/stream"
)

type stubScheduler struct{ active bool }

func (s stubScheduler) IsActive() bool { return s.active }

type apiFixture struct {
	router      http.Handler
	store       *store.MockStore
	credentials *credentials.Service
	statusCache *status.Cache
	maintenance *maintenance.State
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	authService, err := auth.NewService(
		"test-jwt-secret-of-sufficient-length!",
		"admin", "secret", time.Hour,
	)
	require.NoError(t, err)

	credCipher, err := auth.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	credService := credentials.NewService(credCipher)
	st := store.NewMockStore()
	statusCache := status.NewCache()
	maintenanceState := maintenance.NewState(stream.NewRegistry(stream.TopicMaintenance, logger))
	factory := driver.NewFactory(2*time.Second, logger)

	handler := NewHandler(
		authService, st, credService, factory,
		statusCache, maintenanceState, stubScheduler{active: true},
		2*time.Second, logger,
	)
	router := NewRouter(handler, authService, nil, logger)

	return &apiFixture{
		router:      router,
		store:       st,
		credentials: credService,
		statusCache: statusCache,
		maintenance: maintenanceState,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/login", "", auth.LoginRequest{Username: "admin", Password: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/login", "", auth.LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIntegrationsRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/integrations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAndGetIntegrations(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	in := model.Integration{
		ID:          uuid.New(),
		Name:        "kuma",
		ServiceType: model.ServiceUptimeKuma,
		Active:      true,
	}
	f.store.Put(in)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []model.Integration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, in.ID, listed[0].ID)

	rec = f.do(t, http.MethodGet, "/api/v1/integrations/"+in.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetIntegrationErrors(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/integrations/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMonitorsEndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("monitor_status{monitor_name=\"nas\"} 1\n"))
	}))
	t.Cleanup(upstream.Close)

	sealed, err := f.credentials.Encrypt([]byte(`{"base_url":"` + upstream.URL + `","api_key":"uk1_abc"}`))
	require.NoError(t, err)

	in := model.Integration{
		ID:                   uuid.New(),
		Name:                 "kuma",
		ServiceType:          model.ServiceUptimeKuma,
		EncryptedCredentials: sealed,
		Active:               true,
	}
	f.store.Put(in)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations/"+in.ID.String()+"/monitors", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var monitors []driver.Monitor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monitors))
	require.Len(t, monitors, 1)
	assert.Equal(t, "nas", monitors[0].Name)
	assert.Equal(t, "up", monitors[0].State)
}

func TestListGuestsUnsupportedForMonitorIntegration(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	sealed, err := f.credentials.Encrypt([]byte(`{"base_url":"http://kuma.lan:3001","api_key":"uk1_abc"}`))
	require.NoError(t, err)

	in := model.Integration{
		ID:                   uuid.New(),
		Name:                 "kuma",
		ServiceType:          model.ServiceUptimeKuma,
		EncryptedCredentials: sealed,
		Active:               true,
	}
	f.store.Put(in)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations/"+in.ID.String()+"/guests", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMonitorsWithUnusableCredentials(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	in := model.Integration{
		ID:                   uuid.New(),
		Name:                 "kuma",
		ServiceType:          model.ServiceUptimeKuma,
		EncryptedCredentials: []byte("garbage"),
		Active:               true,
	}
	f.store.Put(in)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations/"+in.ID.String()+"/monitors", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusSnapshotIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	f.statusCache.Merge(model.StatusMap{"nas": model.StatusOnline})

	rec := f.do(t, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items       model.StatusMap `json:"items"`
		Maintenance bool            `json:"maintenance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusOnline, resp.Items["nas"])
	assert.False(t, resp.Maintenance)
}

func TestPollerState(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/v1/poller", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":true}`, rec.Body.String())
}

func TestSetMaintenance(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login(t)

	rec := f.do(t, http.MethodPut, "/api/v1/maintenance", token, maintenance.Event{Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())
	assert.True(t, f.maintenance.Enabled())

	rec = f.do(t, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"maintenance":true`)
}
