package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoinsight/insight-engine/pkg/apperrors"
	"github.com/autoinsight/insight-engine/pkg/auth"
	"github.com/autoinsight/insight-engine/pkg/logging"
	"github.com/autoinsight/insight-engine/pkg/models"
	"github.com/autoinsight/insight-engine/pkg/services"
)

// CreateConnectionRequest for POST body. Data carries the credential pair
// plus any descriptive fields; the handler never inspects the password.
type CreateConnectionRequest struct {
	DataSourceType string         `json:"dataSourceType"`
	Name           string         `json:"name"`
	Host           string         `json:"host"`
	URI            string         `json:"uri,omitempty"`
	Data           map[string]any `json:"data"`
}

// CreateConnectionResponse identifies the newly created connection.
type CreateConnectionResponse struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connectionId"`
	VaultPath    string `json:"vaultPath"`
}

// ListConnectionsResponse wraps the user's connection records.
type ListConnectionsResponse struct {
	Success     bool                 `json:"success"`
	Connections []*models.Connection `json:"connections"`
	Count       int                  `json:"count"`
}

// UpdateConnectionRequest for PUT body. Credentials, when present,
// overwrite the secret entry in place at the existing vault path.
type UpdateConnectionRequest struct {
	Name        *string             `json:"name,omitempty"`
	Host        *string             `json:"host,omitempty"`
	URI         *string             `json:"uri,omitempty"`
	Extra       map[string]any      `json:"extra,omitempty"`
	Credentials *models.Credentials `json:"credentials,omitempty"`
}

// UpdateConnectionResponse reports how many records were modified.
type UpdateConnectionResponse struct {
	Success       bool  `json:"success"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// DeleteConnectionResponse reports how many records were deleted.
type DeleteConnectionResponse struct {
	Success      bool  `json:"success"`
	DeletedCount int64 `json:"deletedCount"`
}

// CredentialsResponse carries the secret half of a connection.
type CredentialsResponse struct {
	Success     bool              `json:"success"`
	Credentials map[string]string `json:"credentials"`
}

// TestConnectionRequest for POST test body.
type TestConnectionRequest struct {
	DataSourceType string         `json:"dataSourceType"`
	Config         map[string]any `json:"config"`
}

// TestConnectionResponse for connection test result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConnectionsHandler handles connection-related HTTP requests.
type ConnectionsHandler struct {
	connectionService services.ConnectionService
	logger            *zap.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(connectionService services.ConnectionService, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connectionService: connectionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the connections handler's routes on the given mux.
// All routes are user-scoped: the auth middleware matches the {uid} path
// parameter against the token subject.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	withUser := authMiddleware.RequireAuthWithPathValidation("uid")
	mux.HandleFunc("POST /api/users/{uid}/connections", withUser(h.Create))
	mux.HandleFunc("GET /api/users/{uid}/connections", withUser(h.List))
	mux.HandleFunc("PUT /api/users/{uid}/connections/{cid}", withUser(h.Update))
	mux.HandleFunc("DELETE /api/users/{uid}/connections/{cid}", withUser(h.Delete))
	mux.HandleFunc("GET /api/users/{uid}/connections/{cid}/credentials", withUser(h.GetCredentials))
	mux.HandleFunc("POST /api/users/{uid}/connections/test", withUser(h.TestConnection))
}

// Create handles POST /api/users/{uid}/connections
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")

	var req CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.connectionService.Create(r.Context(), userID, req.DataSourceType, services.CreateConnectionInput{
		Name: req.Name,
		Host: req.Host,
		URI:  req.URI,
		Data: req.Data,
	})
	if err != nil {
		h.handleServiceError(w, err, "Failed to create connection")
		return
	}

	h.writeJSON(w, http.StatusCreated, CreateConnectionResponse{
		Success:      true,
		ConnectionID: result.ConnectionID.String(),
		VaultPath:    result.VaultPath,
	})
}

// List handles GET /api/users/{uid}/connections
// Query parameters: type (filter by data source type),
// includeCredentials (attach secrets where present).
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	dataSourceType := r.URL.Query().Get("type")
	includeCredentials := r.URL.Query().Get("includeCredentials") == "true"

	connections, err := h.connectionService.List(r.Context(), userID, dataSourceType, includeCredentials)
	if err != nil {
		h.handleServiceError(w, err, "Failed to list connections")
		return
	}

	if connections == nil {
		connections = []*models.Connection{}
	}

	h.writeJSON(w, http.StatusOK, ListConnectionsResponse{
		Success:     true,
		Connections: connections,
		Count:       len(connections),
	})
}

// Update handles PUT /api/users/{uid}/connections/{cid}
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")

	connectionID, ok := h.parseConnectionID(w, r)
	if !ok {
		return
	}

	var req UpdateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	upd := models.ConnectionUpdate{
		Name:  req.Name,
		Host:  req.Host,
		Extra: req.Extra,
	}
	if req.URI != nil {
		upd.EncryptedURI = req.URI
	}

	modified, err := h.connectionService.Update(r.Context(), userID, connectionID, upd, req.Credentials)
	if err != nil {
		h.handleServiceError(w, err, "Failed to update connection")
		return
	}

	h.writeJSON(w, http.StatusOK, UpdateConnectionResponse{
		Success:       true,
		ModifiedCount: modified,
	})
}

// Delete handles DELETE /api/users/{uid}/connections/{cid}
// Query parameter dataSourceType allows secret cleanup even when the
// metadata record is already gone.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")

	connectionID, ok := h.parseConnectionID(w, r)
	if !ok {
		return
	}

	deleted, err := h.connectionService.Delete(r.Context(), userID, connectionID, r.URL.Query().Get("dataSourceType"))
	if err != nil {
		h.handleServiceError(w, err, "Failed to delete connection")
		return
	}

	h.writeJSON(w, http.StatusOK, DeleteConnectionResponse{
		Success:      true,
		DeletedCount: deleted,
	})
}

// GetCredentials handles GET /api/users/{uid}/connections/{cid}/credentials
// Unlike listings, an absent secret here is a 404.
func (h *ConnectionsHandler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")

	connectionID, ok := h.parseConnectionID(w, r)
	if !ok {
		return
	}

	credentials, err := h.connectionService.GetCredentials(r.Context(), userID, connectionID, r.URL.Query().Get("dataSourceType"))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Credentials not found")
			return
		}
		h.handleServiceError(w, err, "Failed to fetch credentials")
		return
	}

	h.writeJSON(w, http.StatusOK, CredentialsResponse{
		Success:     true,
		Credentials: credentials,
	})
}

// TestConnection handles POST /api/users/{uid}/connections/test
// Probes a data source with the supplied config without persisting anything.
func (h *ConnectionsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DataSourceType == "" {
		h.writeError(w, http.StatusBadRequest, "dataSourceType is required")
		return
	}

	if err := h.connectionService.TestConnection(r.Context(), req.DataSourceType, req.Config); err != nil {
		if errors.Is(err, apperrors.ErrUnsupportedType) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Connection test failure is a result, not a server error.
		h.writeJSON(w, http.StatusOK, TestConnectionResponse{
			Success: false,
			Message: logging.SanitizeError(err),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, TestConnectionResponse{
		Success: true,
		Message: "Connection successful",
	})
}

// parseConnectionID extracts and validates the connection ID from the
// request path. Writes a 400 response and returns false on failure.
func (h *ConnectionsHandler) parseConnectionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	cidStr := r.PathValue("cid")
	connectionID, err := uuid.Parse(cidStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid connection ID format")
		return uuid.Nil, false
	}
	return connectionID, true
}

// handleServiceError maps workflow errors onto HTTP statuses.
func (h *ConnectionsHandler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, apperrors.ErrStoreSealed),
		errors.Is(err, apperrors.ErrCredentialStore),
		errors.Is(err, apperrors.ErrMetadataStore):
		h.logger.Error(fallback, zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, fallback)
	default:
		h.logger.Error(fallback, zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *ConnectionsHandler) writeError(w http.ResponseWriter, status int, message string) {
	if err := ErrorResponse(w, status, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *ConnectionsHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
