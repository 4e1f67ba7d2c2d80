package secrets

import (
	"fmt"
	"strings"
)

// Path derives the vault path for a user's connection credentials.
// It is the only coupling between the metadata store and the secret store,
// so it must stay pure and deterministic.
func Path(userID, dataSourceType, connectionID string) string {
	return userID + "/" + dataSourceType + "/" + connectionID
}

// ParsePath is the inverse of Path. It splits a derived vault path back
// into its (userID, dataSourceType, connectionID) components.
func ParsePath(path string) (userID, dataSourceType, connectionID string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed vault path %q: expected userId/type/connectionId", path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", fmt.Errorf("malformed vault path %q: empty segment", path)
		}
	}
	return parts[0], parts[1], parts[2], nil
}
