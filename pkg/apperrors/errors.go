package apperrors

import "errors"

var (
	// ErrNotFound is returned when a connection record or secret is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrStoreSealed is returned when the secret store cannot be unsealed.
	ErrStoreSealed = errors.New("secret store is sealed")
	// ErrCredentialStore is returned when the secret store rejects an operation.
	ErrCredentialStore = errors.New("credential store failure")
	// ErrMetadataStore is returned when the metadata database fails.
	ErrMetadataStore = errors.New("metadata store failure")
	// ErrUnsupportedType is returned for datasource types with no registered adapter.
	ErrUnsupportedType = errors.New("unsupported datasource type")
)
