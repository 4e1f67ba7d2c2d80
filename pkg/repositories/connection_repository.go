// Package repositories provides data access to the connection metadata
// store. Credentials never pass through this layer: the user_connections
// table has no password column by construction.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autoinsight/insight-engine/pkg/apperrors"
	"github.com/autoinsight/insight-engine/pkg/database"
	"github.com/autoinsight/insight-engine/pkg/models"
)

// ConnectionRepository defines data access for connection records.
type ConnectionRepository interface {
	// Create inserts a new connection record.
	Create(ctx context.Context, conn *models.Connection) error

	// GetByID retrieves one of a user's connections. Returns
	// apperrors.ErrNotFound when no row matches.
	GetByID(ctx context.Context, userID string, connectionID uuid.UUID) (*models.Connection, error)

	// ListByUser retrieves a user's connections, optionally filtered by
	// data source type (empty string means no filter).
	ListByUser(ctx context.Context, userID, dataSourceType string) ([]*models.Connection, error)

	// Update applies partial field changes to the matching record and
	// returns the number of rows modified. Zero is not an error: the
	// caller distinguishes "nothing to update" from a failure by the
	// count. vault_path and connection_id are never touched.
	Update(ctx context.Context, userID string, connectionID uuid.UUID, upd models.ConnectionUpdate) (int64, error)

	// Delete removes the matching record and returns the number of rows
	// deleted. Deleting a non-existent record returns zero, not an error.
	Delete(ctx context.Context, userID string, connectionID uuid.UUID) (int64, error)
}

// connectionRepository implements ConnectionRepository using PostgreSQL.
type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a new connection repository over the
// given pool.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `connection_id, user_id, data_source_type, name, host, username,
	encrypted_uri, vault_path, extra, created_at, last_updated`

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.LastUpdated = now

	extra, err := marshalExtra(conn.Extra)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		conn.ConnectionID,
		conn.UserID,
		conn.DataSourceType,
		conn.Name,
		conn.Host,
		conn.Username,
		conn.EncryptedURI,
		conn.VaultPath,
		extra,
		conn.CreatedAt,
		conn.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create connection record: %v", apperrors.ErrMetadataStore, err)
	}
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, userID string, connectionID uuid.UUID) (*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_connections
		WHERE user_id = $1 AND connection_id = $2`

	conn, err := scanConnection(r.db.QueryRow(ctx, query, userID, connectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to get connection: %v", apperrors.ErrMetadataStore, err)
	}
	return conn, nil
}

func (r *connectionRepository) ListByUser(ctx context.Context, userID, dataSourceType string) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_connections
		WHERE user_id = $1`
	args := []any{userID}

	if dataSourceType != "" {
		query += ` AND data_source_type = $2`
		args = append(args, dataSourceType)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list connections: %v", apperrors.ErrMetadataStore, err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan connection: %v", apperrors.ErrMetadataStore, err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate connections: %v", apperrors.ErrMetadataStore, err)
	}
	return conns, nil
}

func (r *connectionRepository) Update(ctx context.Context, userID string, connectionID uuid.UUID, upd models.ConnectionUpdate) (int64, error) {
	set := []string{"last_updated = $1"}
	args := []any{time.Now().UTC()}

	addSet := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		addSet("name", *upd.Name)
	}
	if upd.Host != nil {
		addSet("host", *upd.Host)
	}
	if upd.Username != nil {
		addSet("username", *upd.Username)
	}
	if upd.EncryptedURI != nil {
		addSet("encrypted_uri", *upd.EncryptedURI)
	}
	if upd.Extra != nil {
		extra, err := marshalExtra(upd.Extra)
		if err != nil {
			return 0, err
		}
		addSet("extra", extra)
	}

	args = append(args, userID, connectionID)
	query := fmt.Sprintf(`
		UPDATE user_connections
		SET %s
		WHERE user_id = $%d AND connection_id = $%d`,
		joinSet(set), len(args)-1, len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to update connection: %v", apperrors.ErrMetadataStore, err)
	}
	return tag.RowsAffected(), nil
}

func (r *connectionRepository) Delete(ctx context.Context, userID string, connectionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_connections
		WHERE user_id = $1 AND connection_id = $2`,
		userID, connectionID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete connection: %v", apperrors.ErrMetadataStore, err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var extra []byte

	err := row.Scan(
		&conn.ConnectionID,
		&conn.UserID,
		&conn.DataSourceType,
		&conn.Name,
		&conn.Host,
		&conn.Username,
		&conn.EncryptedURI,
		&conn.VaultPath,
		&extra,
		&conn.CreatedAt,
		&conn.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &conn.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra fields: %w", err)
		}
	}
	return &conn, nil
}

func marshalExtra(extra map[string]any) ([]byte, error) {
	if extra == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode extra fields: %v", apperrors.ErrValidation, err)
	}
	return data, nil
}

func joinSet(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
