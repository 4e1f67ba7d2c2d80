package auth

import "errors"

var (
	errMissingToken   = errors.New("missing or malformed bearer token")
	errMissingSubject = errors.New("token has no subject claim")
)
