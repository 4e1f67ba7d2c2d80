package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autoinsight/insight-engine/pkg/apperrors"
	"github.com/autoinsight/insight-engine/pkg/models"
	"github.com/autoinsight/insight-engine/pkg/services"
)

// mockConnectionService is a mock implementation of services.ConnectionService.
type mockConnectionService struct {
	createResult *services.CreateResult
	createErr    error
	listResult   []*models.Connection
	listErr      error
	modified     int64
	updateErr    error
	deleted      int64
	deleteErr    error
	credentials  map[string]string
	credsErr     error
	testErr      error

	lastUserID   string
	lastDSType   string
	lastInclude  bool
	lastUpdate   models.ConnectionUpdate
	lastNewCreds *models.Credentials
}

func (m *mockConnectionService) Create(ctx context.Context, userID, dataSourceType string, input services.CreateConnectionInput) (*services.CreateResult, error) {
	m.lastUserID = userID
	m.lastDSType = dataSourceType
	return m.createResult, m.createErr
}

func (m *mockConnectionService) List(ctx context.Context, userID, dataSourceType string, includeCredentials bool) ([]*models.Connection, error) {
	m.lastUserID = userID
	m.lastDSType = dataSourceType
	m.lastInclude = includeCredentials
	return m.listResult, m.listErr
}

func (m *mockConnectionService) Update(ctx context.Context, userID string, connectionID uuid.UUID, upd models.ConnectionUpdate, newCredentials *models.Credentials) (int64, error) {
	m.lastUserID = userID
	m.lastUpdate = upd
	m.lastNewCreds = newCredentials
	return m.modified, m.updateErr
}

func (m *mockConnectionService) Delete(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (int64, error) {
	m.lastUserID = userID
	m.lastDSType = dataSourceType
	return m.deleted, m.deleteErr
}

func (m *mockConnectionService) GetCredentials(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (map[string]string, error) {
	m.lastUserID = userID
	return m.credentials, m.credsErr
}

func (m *mockConnectionService) TestConnection(ctx context.Context, dataSourceType string, config map[string]any) error {
	m.lastDSType = dataSourceType
	return m.testErr
}

func newTestHandler(svc services.ConnectionService) *ConnectionsHandler {
	return NewConnectionsHandler(svc, zap.NewNop())
}

func TestCreateConnection_Success(t *testing.T) {
	connectionID := uuid.New()
	svc := &mockConnectionService{
		createResult: &services.CreateResult{
			ConnectionID: connectionID,
			VaultPath:    "u1/mongodb/" + connectionID.String(),
		},
	}
	h := newTestHandler(svc)

	body, _ := json.Marshal(CreateConnectionRequest{
		DataSourceType: "mongodb",
		Name:           "orders-db",
		Host:           "db.example.com",
		Data:           map[string]any{"username": "a", "password": "b"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, connectionID.String(), resp.ConnectionID)
	assert.Equal(t, "u1/mongodb/"+connectionID.String(), resp.VaultPath)
	assert.Equal(t, "u1", svc.lastUserID)
	assert.Equal(t, "mongodb", svc.lastDSType)
}

func TestCreateConnection_ValidationError(t *testing.T) {
	svc := &mockConnectionService{
		createErr: fmt.Errorf("%w: missing username or password in connection data", apperrors.ErrValidation),
	}
	h := newTestHandler(svc)

	body, _ := json.Marshal(CreateConnectionRequest{DataSourceType: "mongodb"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["message"], "missing username or password")
}

func TestCreateConnection_StoreFailure(t *testing.T) {
	svc := &mockConnectionService{
		createErr: fmt.Errorf("%w: connect refused", apperrors.ErrCredentialStore),
	}
	h := newTestHandler(svc)

	body, _ := json.Marshal(CreateConnectionRequest{
		DataSourceType: "postgresql",
		Data:           map[string]any{"username": "a", "password": "b"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateConnection_InvalidBody(t *testing.T) {
	h := newTestHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections", bytes.NewReader([]byte("{not json")))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConnections_Success(t *testing.T) {
	svc := &mockConnectionService{
		listResult: []*models.Connection{
			{UserID: "u1", ConnectionID: uuid.New(), DataSourceType: "mongodb", Name: "a"},
			{UserID: "u1", ConnectionID: uuid.New(), DataSourceType: "postgresql", Name: "b"},
		},
	}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/connections?type=mongodb&includeCredentials=true", nil)
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListConnectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Connections, 2)
	assert.Equal(t, "mongodb", svc.lastDSType)
	assert.True(t, svc.lastInclude)
}

func TestListConnections_EmptyIsNotNull(t *testing.T) {
	h := newTestHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/connections", nil)
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":[]`)
}

func TestListConnections_NoPasswordInResponse(t *testing.T) {
	svc := &mockConnectionService{
		listResult: []*models.Connection{
			{
				UserID:         "u1",
				ConnectionID:   uuid.New(),
				DataSourceType: "mongodb",
				Username:       "a",
				Host:           "h",
				VaultPath:      "u1/mongodb/x",
			},
		},
	}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/connections", nil)
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestUpdateConnection_Success(t *testing.T) {
	svc := &mockConnectionService{modified: 1}
	h := newTestHandler(svc)

	name := "renamed"
	body, _ := json.Marshal(UpdateConnectionRequest{
		Name:        &name,
		Credentials: &models.Credentials{Username: "a", Password: "c"},
	})
	cid := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/connections/"+cid.String(), bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp UpdateConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.ModifiedCount)
	require.NotNil(t, svc.lastNewCreds)
	assert.Equal(t, "c", svc.lastNewCreds.Password)
	require.NotNil(t, svc.lastUpdate.Name)
	assert.Equal(t, "renamed", *svc.lastUpdate.Name)
}

func TestUpdateConnection_ZeroModified(t *testing.T) {
	svc := &mockConnectionService{modified: 0}
	h := newTestHandler(svc)

	body, _ := json.Marshal(UpdateConnectionRequest{})
	cid := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/connections/"+cid.String(), bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp UpdateConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(0), resp.ModifiedCount)
}

func TestUpdateConnection_InvalidConnectionID(t *testing.T) {
	h := newTestHandler(&mockConnectionService{})

	req := httptest.NewRequest(http.MethodPut, "/api/users/u1/connections/not-a-uuid", bytes.NewReader([]byte("{}")))
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.Update(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConnection_Success(t *testing.T) {
	svc := &mockConnectionService{deleted: 1}
	h := newTestHandler(svc)

	cid := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/users/u1/connections/"+cid.String()+"?dataSourceType=mongodb", nil)
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.DeletedCount)
	assert.Equal(t, "mongodb", svc.lastDSType)
}

func TestDeleteConnection_NonExistentIsSuccess(t *testing.T) {
	svc := &mockConnectionService{deleted: 0}
	h := newTestHandler(svc)

	cid := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/users/u1/connections/"+cid.String(), nil)
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(0), resp.DeletedCount)
}

func TestGetCredentials_Success(t *testing.T) {
	svc := &mockConnectionService{
		credentials: map[string]string{"username": "a", "password": "b"},
	}
	h := newTestHandler(svc)

	cid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/connections/"+cid.String()+"/credentials", nil)
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.GetCredentials(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CredentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "a", resp.Credentials["username"])
}

func TestGetCredentials_NotFound(t *testing.T) {
	svc := &mockConnectionService{credsErr: apperrors.ErrNotFound}
	h := newTestHandler(svc)

	cid := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/connections/"+cid.String()+"/credentials", nil)
	req.SetPathValue("uid", "u1")
	req.SetPathValue("cid", cid.String())
	rec := httptest.NewRecorder()

	h.GetCredentials(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestConnection_Success(t *testing.T) {
	h := newTestHandler(&mockConnectionService{})

	body, _ := json.Marshal(TestConnectionRequest{
		DataSourceType: "postgresql",
		Config:         map[string]any{"host": "h", "user": "u", "password": "p"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections/test", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.TestConnection(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TestConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestTestConnection_Failure(t *testing.T) {
	svc := &mockConnectionService{testErr: errors.New("ping failed: connection refused")}
	h := newTestHandler(svc)

	body, _ := json.Marshal(TestConnectionRequest{
		DataSourceType: "postgresql",
		Config:         map[string]any{"host": "h"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections/test", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.TestConnection(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TestConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "ping failed")
}

func TestTestConnection_UnsupportedType(t *testing.T) {
	svc := &mockConnectionService{
		testErr: fmt.Errorf("%w: oracle", apperrors.ErrUnsupportedType),
	}
	h := newTestHandler(svc)

	body, _ := json.Marshal(TestConnectionRequest{DataSourceType: "oracle"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections/test", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.TestConnection(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestConnection_MissingType(t *testing.T) {
	h := newTestHandler(&mockConnectionService{})

	body, _ := json.Marshal(TestConnectionRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/connections/test", bytes.NewReader(body))
	req.SetPathValue("uid", "u1")
	rec := httptest.NewRecorder()

	h.TestConnection(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
