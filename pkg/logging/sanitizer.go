// Package logging provides helpers to keep credentials out of log output.
package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Matches password=xxx, pwd=xxx, pass=xxx (until next delimiter).
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches bearer tokens (three base64url segments separated by dots).
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Matches vault tokens (hvs./hvb./s. prefixes).
	vaultTokenPattern = regexp.MustCompile(`\b(?:hvs|hvb|s)\.[A-Za-z0-9]{20,}\b`)

	// Matches user:pass@host credentials embedded in connection URIs.
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// sensitiveKeys are map keys whose values must never appear in logs.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"pwd":           {},
	"pass":          {},
	"secret":        {},
	"token":         {},
	"client_secret": {},
}

// SanitizeConnectionString removes credentials from a connection string
// before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs an error message that may echo credentials, tokens,
// or connection URIs back from a store driver.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = vaultTokenPattern.ReplaceAllString(sanitized, RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// RedactCredentials returns a copy of a credential map safe for logging:
// sensitive values are replaced, the rest pass through.
func RedactCredentials(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if _, sensitive := sensitiveKeys[k]; sensitive {
			out[k] = RedactedText
			continue
		}
		out[k] = v
	}
	return out
}
