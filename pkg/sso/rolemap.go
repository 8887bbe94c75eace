package sso

import "sort"

// DefaultRole is granted when no configured group mapping matches. Downstream
// authorization assumes every authenticated user carries at least one role.
const DefaultRole = "user"

// MapRoles resolves external group memberships to internal roles using the
// org's configured mapping. The result is the sorted union of all mapped
// roles; an empty union yields the default role.
func MapRoles(groups []string, roleMapping map[string][]string) []string {
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, role := range roleMapping[group] {
			seen[role] = true
		}
	}

	if len(seen) == 0 {
		return []string{DefaultRole}
	}

	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
