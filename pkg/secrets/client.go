// Package secrets wraps a HashiCorp Vault server behind the small surface
// the credential-vaulting workflow needs: seal management, idempotent KV v2
// provisioning, per-path secret CRUD, and transit encryption.
package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/autoinsight/insight-engine/pkg/apperrors"
	"github.com/autoinsight/insight-engine/pkg/config"
	"github.com/autoinsight/insight-engine/pkg/logging"
	"github.com/autoinsight/insight-engine/pkg/metrics"
)

// SecretStore is the surface the workflow layer depends on.
type SecretStore interface {
	// EnsureReady unseals the store if needed. Idempotent; called
	// defensively before every operation because the store may be
	// resealed externally at any time.
	EnsureReady(ctx context.Context) error

	// WriteSecret stores data at the derived vault path, overwriting any
	// previous entry.
	WriteSecret(ctx context.Context, path string, data map[string]string) error

	// ReadSecret returns the entry at path, or (nil, nil) when absent.
	ReadSecret(ctx context.Context, path string) (map[string]string, error)

	// DeleteSecret removes the entry at path. Absence is not an error.
	DeleteSecret(ctx context.Context, path string) error

	// ListSecretPaths lists entries under prefix. Returns an empty slice
	// when the prefix does not exist.
	ListSecretPaths(ctx context.Context, prefix string) ([]string, error)

	// Encrypt encrypts plaintext with the named transit key. Independent
	// of the KV mount.
	Encrypt(ctx context.Context, keyName, plaintext string) (string, error)
}

// Client implements SecretStore over the Vault HTTP API.
type Client struct {
	api        *vaultapi.Client
	unsealKeys []string
	mountPoint string
	logger     *zap.Logger
}

// NewClient builds a Vault client from configuration. The token and unseal
// shares come from the injected config, never from source.
func NewClient(cfg *config.VaultConfig, logger *zap.Logger) (*Client, error) {
	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Timeout = cfg.Timeout()

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("new vault client: %w", err)
	}
	api.SetToken(cfg.Token)

	return &Client{
		api:        api,
		unsealKeys: cfg.UnsealKeys,
		mountPoint: strings.Trim(cfg.MountPoint, "/"),
		logger:     logger,
	}, nil
}

// IsSealed reports whether the store is sealed. Any transport failure is
// reported as sealed: downstream logic treats "unknown" as unsafe to
// proceed.
func (c *Client) IsSealed(ctx context.Context) bool {
	status, err := c.api.Sys().SealStatusWithContext(ctx)
	if err != nil {
		c.logger.Warn("seal status check failed, treating store as sealed",
			zap.String("error", logging.SanitizeError(err)))
		return true
	}
	return status.Sealed
}

// Unseal submits the configured unseal shares in order, stopping as soon as
// the store reports unsealed. No-op when already unsealed. Returns
// ErrStoreSealed if the store is still sealed after all shares.
func (c *Client) Unseal(ctx context.Context) error {
	if !c.IsSealed(ctx) {
		return nil
	}

	c.logger.Info("secret store is sealed, submitting unseal shares",
		zap.Int("shares", len(c.unsealKeys)))

	for i, key := range c.unsealKeys {
		metrics.RecordUnsealAttempt()
		status, err := c.api.Sys().UnsealWithContext(ctx, key)
		if err != nil {
			c.logger.Error("unseal share rejected",
				zap.Int("share", i+1),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		if !status.Sealed {
			c.logger.Info("secret store unsealed", zap.Int("shares_used", i+1))
			break
		}
	}

	if c.IsSealed(ctx) {
		return fmt.Errorf("%w: still sealed after submitting all shares", apperrors.ErrStoreSealed)
	}
	return nil
}

// EnsureReady composes the seal check and unseal sequence.
func (c *Client) EnsureReady(ctx context.Context) error {
	if !c.IsSealed(ctx) {
		return nil
	}
	return c.Unseal(ctx)
}

// EnsureMount provisions the KV v2 secrets engine at the configured mount
// point. Idempotent: an existing mount, detected either via the mount
// listing or the "path is already in use" error, is success.
func (c *Client) EnsureMount(ctx context.Context) error {
	if err := c.EnsureReady(ctx); err != nil {
		return err
	}

	mounts, err := c.api.Sys().ListMountsWithContext(ctx)
	if err == nil {
		if _, mounted := mounts[c.mountPoint+"/"]; mounted {
			return nil
		}
	}

	err = c.api.Sys().MountWithContext(ctx, c.mountPoint, &vaultapi.MountInput{
		Type:    "kv",
		Options: map[string]string{"version": "2"},
	})
	if err != nil {
		if isAlreadyInUse(err) {
			return nil
		}
		return fmt.Errorf("%w: mounting kv engine at %s: %s",
			apperrors.ErrCredentialStore, c.mountPoint, logging.SanitizeError(err))
	}

	c.logger.Info("mounted kv v2 secrets engine", zap.String("mount_point", c.mountPoint))
	return nil
}

// WriteSecret stores credentials at <mount>/data/<path> (KV v2 envelope).
func (c *Client) WriteSecret(ctx context.Context, path string, data map[string]string) error {
	if err := c.EnsureMount(ctx); err != nil {
		return err
	}

	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}

	_, err := c.api.Logical().WriteWithContext(ctx, c.dataPath(path), map[string]interface{}{
		"data": payload,
	})
	if err != nil {
		return fmt.Errorf("%w: writing secret at %s: %s",
			apperrors.ErrCredentialStore, path, logging.SanitizeError(err))
	}

	c.logger.Debug("wrote secret", zap.String("vault_path", path))
	return nil
}

// ReadSecret fetches credentials from <mount>/data/<path>. A missing entry
// returns (nil, nil), not an error.
func (c *Client) ReadSecret(ctx context.Context, path string) (map[string]string, error) {
	if err := c.EnsureMount(ctx); err != nil {
		return nil, err
	}

	secret, err := c.api.Logical().ReadWithContext(ctx, c.dataPath(path))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading secret at %s: %s",
			apperrors.ErrCredentialStore, path, logging.SanitizeError(err))
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	// Unwrap the KV v2 envelope.
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	data := make(map[string]string, len(inner))
	for k, v := range inner {
		if s, ok := v.(string); ok {
			data[k] = s
		}
	}
	return data, nil
}

// DeleteSecret removes the entry at <mount>/data/<path>. Deleting a path
// that does not exist succeeds.
func (c *Client) DeleteSecret(ctx context.Context, path string) error {
	if err := c.EnsureMount(ctx); err != nil {
		return err
	}

	_, err := c.api.Logical().DeleteWithContext(ctx, c.dataPath(path))
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: deleting secret at %s: %s",
			apperrors.ErrCredentialStore, path, logging.SanitizeError(err))
	}

	c.logger.Debug("deleted secret", zap.String("vault_path", path))
	return nil
}

// ListSecretPaths lists entries under <mount>/metadata/<prefix>. A missing
// prefix yields an empty slice.
func (c *Client) ListSecretPaths(ctx context.Context, prefix string) ([]string, error) {
	if err := c.EnsureMount(ctx); err != nil {
		return nil, err
	}

	secret, err := c.api.Logical().ListWithContext(ctx, c.metadataPath(prefix))
	if err != nil {
		if isNotFound(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: listing secrets under %s: %s",
			apperrors.ErrCredentialStore, prefix, logging.SanitizeError(err))
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	rawKeys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return []string{}, nil
	}

	keys := make([]string, 0, len(rawKeys))
	for _, k := range rawKeys {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// Encrypt encrypts plaintext with the named transit key. It needs the store
// unsealed but does not depend on the KV mount.
func (c *Client) Encrypt(ctx context.Context, keyName, plaintext string) (string, error) {
	if err := c.EnsureReady(ctx); err != nil {
		return "", err
	}

	secret, err := c.api.Logical().WriteWithContext(ctx, "transit/encrypt/"+keyName,
		map[string]interface{}{
			"plaintext": base64.StdEncoding.EncodeToString([]byte(plaintext)),
		})
	if err != nil {
		return "", fmt.Errorf("%w: transit encrypt with key %s: %s",
			apperrors.ErrCredentialStore, keyName, logging.SanitizeError(err))
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: transit response missing ciphertext", apperrors.ErrCredentialStore)
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("%w: transit response missing ciphertext", apperrors.ErrCredentialStore)
	}
	return ciphertext, nil
}

func (c *Client) dataPath(path string) string {
	return c.mountPoint + "/data/" + path
}

func (c *Client) metadataPath(prefix string) string {
	return c.mountPoint + "/metadata/" + prefix
}

// isNotFound detects a 404 from the Vault API.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *vaultapi.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	// Sadly the api sometimes only gives us a string.
	return strings.Contains(err.Error(), "secret not found")
}

// isAlreadyInUse detects the error Vault returns when mounting over an
// existing mount point.
func isAlreadyInUse(err error) bool {
	var apiErr *vaultapi.ResponseError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.Join(apiErr.Errors, ","), "path is already in use")
	}
	return err != nil && strings.Contains(err.Error(), "path is already in use")
}

// Ensure Client implements SecretStore at compile time.
var _ SecretStore = (*Client)(nil)
