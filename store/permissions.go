package store

import "strings"

// Permissions are stored as a comma-joined text column. None of the
// permission names contain commas, so the encoding is unambiguous.

func permissionsValue(perms []string) string {
	return strings.Join(perms, ",")
}

func parsePermissions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
