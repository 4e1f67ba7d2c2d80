// Package services contains the credential-vaulting workflow: the
// orchestration of the secret store and the metadata store under the
// split-storage invariants.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoinsight/insight-engine/pkg/adapters/datasource"
	"github.com/autoinsight/insight-engine/pkg/apperrors"
	"github.com/autoinsight/insight-engine/pkg/logging"
	"github.com/autoinsight/insight-engine/pkg/metrics"
	"github.com/autoinsight/insight-engine/pkg/models"
	"github.com/autoinsight/insight-engine/pkg/repositories"
	"github.com/autoinsight/insight-engine/pkg/secrets"
)

// CreateConnectionInput is the caller-supplied descriptor for a new
// connection. Data must contain username and password; everything else in
// it is treated as non-sensitive descriptive fields.
type CreateConnectionInput struct {
	Name string
	Host string
	URI  string // optional; transit-encrypted when possible
	Data map[string]any
}

// CreateResult identifies a newly created connection.
type CreateResult struct {
	ConnectionID uuid.UUID
	VaultPath    string
}

// ConnectionService is the workflow layer over the two stores.
type ConnectionService interface {
	// Create splits credentials from metadata, vaults the former, and
	// persists the latter. If the secret write fails nothing is
	// persisted.
	Create(ctx context.Context, userID, dataSourceType string, input CreateConnectionInput) (*CreateResult, error)

	// List returns a user's connection records, optionally filtered by
	// type and optionally with credentials attached. A missing secret
	// never aborts the listing.
	List(ctx context.Context, userID, dataSourceType string, includeCredentials bool) ([]*models.Connection, error)

	// Update applies metadata changes and, when newCredentials is
	// non-nil, overwrites the secret in place at the existing vault
	// path. Returns the number of records modified.
	Update(ctx context.Context, userID string, connectionID uuid.UUID, upd models.ConnectionUpdate, newCredentials *models.Credentials) (int64, error)

	// Delete removes the secret (best-effort) and the record. Returns
	// the number of records deleted; deleting a non-existent connection
	// returns zero without error.
	Delete(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (int64, error)

	// GetCredentials fetches only the secret half of a connection.
	// Returns apperrors.ErrNotFound when absent.
	GetCredentials(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (map[string]string, error)

	// TestConnection probes a datasource with the given config without
	// saving anything.
	TestConnection(ctx context.Context, dataSourceType string, config map[string]any) error
}

type connectionService struct {
	repo           repositories.ConnectionRepository
	store          secrets.SecretStore
	adapterFactory datasource.AdapterFactory
	transitKey     string
	logger         *zap.Logger
	metrics        *metrics.WorkflowMetrics
}

// NewConnectionService creates the workflow service with its dependencies.
func NewConnectionService(
	repo repositories.ConnectionRepository,
	store secrets.SecretStore,
	adapterFactory datasource.AdapterFactory,
	transitKey string,
	logger *zap.Logger,
) ConnectionService {
	return &connectionService{
		repo:           repo,
		store:          store,
		adapterFactory: adapterFactory,
		transitKey:     transitKey,
		logger:         logger,
		metrics:        metrics.NewWorkflowMetrics(),
	}
}

func (s *connectionService) Create(ctx context.Context, userID, dataSourceType string, input CreateConnectionInput) (result *CreateResult, err error) {
	defer s.record("create", time.Now())(&err)

	if userID == "" || dataSourceType == "" {
		return nil, fmt.Errorf("%w: userId and dataSourceType are required", apperrors.ErrValidation)
	}

	creds, rest, err := splitCredentials(input.Data)
	if err != nil {
		return nil, err
	}

	connectionID := uuid.New()
	vaultPath := secrets.Path(userID, dataSourceType, connectionID.String())

	// Secret first: if the vault write fails the whole create aborts and
	// no metadata record exists to point at an absent secret.
	if err := s.store.WriteSecret(ctx, vaultPath, map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	}); err != nil {
		s.logger.Error("failed to vault credentials, aborting create",
			zap.String("user_id", userID),
			zap.String("vault_path", vaultPath),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	conn := &models.Connection{
		UserID:         userID,
		ConnectionID:   connectionID,
		DataSourceType: dataSourceType,
		Name:           input.Name,
		Host:           input.Host,
		Username:       creds.Username,
		EncryptedURI:   s.encryptURI(ctx, input.URI),
		VaultPath:      vaultPath,
		Extra:          rest,
	}

	if err := s.repo.Create(ctx, conn); err != nil {
		// Compensate: the secret was written but the record was not.
		// Best-effort cleanup keeps the stores from drifting apart.
		if delErr := s.store.DeleteSecret(ctx, vaultPath); delErr != nil {
			s.logger.Warn("failed to clean up vaulted credentials after metadata failure",
				zap.String("vault_path", vaultPath),
				zap.String("error", logging.SanitizeError(delErr)))
		}
		return nil, err
	}

	s.logger.Info("created connection",
		zap.String("user_id", userID),
		zap.String("connection_id", connectionID.String()),
		zap.String("data_source_type", dataSourceType))

	return &CreateResult{ConnectionID: connectionID, VaultPath: vaultPath}, nil
}

func (s *connectionService) List(ctx context.Context, userID, dataSourceType string, includeCredentials bool) (conns []*models.Connection, err error) {
	defer s.record("list", time.Now())(&err)

	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", apperrors.ErrValidation)
	}

	conns, err = s.repo.ListByUser(ctx, userID, dataSourceType)
	if err != nil {
		return nil, err
	}

	if !includeCredentials {
		return conns, nil
	}

	for _, conn := range conns {
		creds, err := s.store.ReadSecret(ctx, conn.VaultPath)
		if err != nil {
			// Partial results policy: one unreadable secret must not
			// abort the listing.
			s.metrics.RecordCredentialFetch("error")
			s.logger.Warn("could not fetch credentials for connection",
				zap.String("connection_id", conn.ConnectionID.String()),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		if creds == nil {
			s.metrics.RecordCredentialFetch("miss")
			s.logger.Warn("no credentials found for connection",
				zap.String("connection_id", conn.ConnectionID.String()),
				zap.String("vault_path", conn.VaultPath))
			continue
		}
		s.metrics.RecordCredentialFetch("hit")
		conn.Credentials = creds
	}
	return conns, nil
}

func (s *connectionService) Update(ctx context.Context, userID string, connectionID uuid.UUID, upd models.ConnectionUpdate, newCredentials *models.Credentials) (modified int64, err error) {
	defer s.record("update", time.Now())(&err)

	if userID == "" || connectionID == uuid.Nil {
		return 0, fmt.Errorf("%w: userId and connectionId are required", apperrors.ErrValidation)
	}

	conn, err := s.repo.GetByID(ctx, userID, connectionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Nothing to update; the caller inspects the count.
			return 0, nil
		}
		return 0, err
	}

	if newCredentials != nil {
		if newCredentials.Username == "" || newCredentials.Password == "" {
			return 0, fmt.Errorf("%w: credentials update requires username and password", apperrors.ErrValidation)
		}
		// Same path: connectionId is immutable so the path never changes.
		if err := s.store.WriteSecret(ctx, conn.VaultPath, map[string]string{
			"username": newCredentials.Username,
			"password": newCredentials.Password,
		}); err != nil {
			return 0, err
		}
		upd.Username = &newCredentials.Username
	}

	return s.repo.Update(ctx, userID, connectionID, upd)
}

func (s *connectionService) Delete(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (deleted int64, err error) {
	defer s.record("delete", time.Now())(&err)

	if userID == "" || connectionID == uuid.Nil {
		return 0, fmt.Errorf("%w: userId and connectionId are required", apperrors.ErrValidation)
	}

	vaultPath, lookupErr := s.vaultPathFor(ctx, userID, connectionID, dataSourceType)
	if lookupErr != nil {
		return 0, lookupErr
	}

	// Secret deletion is attempted first and is best-effort: an orphaned
	// secret is judged less harmful than an undeletable record.
	if vaultPath != "" {
		if err := s.store.DeleteSecret(ctx, vaultPath); err != nil {
			s.logger.Warn("could not delete credentials from secret store",
				zap.String("vault_path", vaultPath),
				zap.String("error", logging.SanitizeError(err)))
		}
	}

	return s.repo.Delete(ctx, userID, connectionID)
}

func (s *connectionService) GetCredentials(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (creds map[string]string, err error) {
	defer s.record("get_credentials", time.Now())(&err)

	if userID == "" || connectionID == uuid.Nil {
		return nil, fmt.Errorf("%w: userId and connectionId are required", apperrors.ErrValidation)
	}

	vaultPath, err := s.vaultPathFor(ctx, userID, connectionID, dataSourceType)
	if err != nil {
		return nil, err
	}
	if vaultPath == "" {
		return nil, apperrors.ErrNotFound
	}

	creds, err = s.store.ReadSecret(ctx, vaultPath)
	if err != nil {
		s.metrics.RecordCredentialFetch("error")
		return nil, err
	}
	if creds == nil {
		s.metrics.RecordCredentialFetch("miss")
		return nil, apperrors.ErrNotFound
	}
	s.metrics.RecordCredentialFetch("hit")
	return creds, nil
}

func (s *connectionService) TestConnection(ctx context.Context, dataSourceType string, config map[string]any) error {
	tester, err := s.adapterFactory.NewConnectionTester(ctx, dataSourceType, config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tester.Close(); closeErr != nil {
			s.logger.Warn("failed to close connection tester", zap.Error(closeErr))
		}
	}()

	return tester.TestConnection(ctx)
}

// vaultPathFor resolves a connection's vault path: prefer the stored path,
// fall back to derivation when the record is already gone (so repeated
// deletes remain idempotent against the secret store too).
func (s *connectionService) vaultPathFor(ctx context.Context, userID string, connectionID uuid.UUID, dataSourceType string) (string, error) {
	conn, err := s.repo.GetByID(ctx, userID, connectionID)
	if err == nil {
		return conn.VaultPath, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return "", err
	}
	if dataSourceType != "" {
		return secrets.Path(userID, dataSourceType, connectionID.String()), nil
	}
	return "", nil
}

// encryptURI transit-encrypts a connection URI. Encryption failure degrades
// gracefully to the plaintext URI: availability wins for this field. The
// password never takes this fallback because it never leaves the secret
// store.
func (s *connectionService) encryptURI(ctx context.Context, uri string) string {
	if uri == "" {
		return ""
	}
	ciphertext, err := s.store.Encrypt(ctx, s.transitKey, uri)
	if err != nil {
		s.logger.Warn("failed to encrypt connection URI, storing as-is",
			zap.String("error", logging.SanitizeError(err)))
		return uri
	}
	return ciphertext
}

// splitCredentials separates {username, password} from the remaining
// descriptive fields.
func splitCredentials(data map[string]any) (models.Credentials, map[string]any, error) {
	if data == nil {
		return models.Credentials{}, nil, fmt.Errorf("%w: connection data is required", apperrors.ErrValidation)
	}

	username, _ := data["username"].(string)
	password, _ := data["password"].(string)
	if username == "" || password == "" {
		return models.Credentials{}, nil, fmt.Errorf("%w: missing username or password in connection data", apperrors.ErrValidation)
	}

	rest := make(map[string]any, len(data))
	for k, v := range data {
		if k == "username" || k == "password" {
			continue
		}
		rest[k] = v
	}
	return models.Credentials{Username: username, Password: password}, rest, nil
}

// record returns a closure that stamps operation metrics when the calling
// method returns.
func (s *connectionService) record(operation string, start time.Time) func(*error) {
	return func(errp *error) {
		status := "success"
		if errp != nil && *errp != nil {
			status = "error"
		}
		s.metrics.RecordOp(operation, status, time.Since(start))
	}
}
