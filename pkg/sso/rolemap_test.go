package sso

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapRoles(t *testing.T) {
	mapping := map[string][]string{
		"engineering": {"developer"},
		"admins":      {"admin", "developer"},
		"support":     {"viewer"},
	}

	tests := []struct {
		name   string
		groups []string
		want   []string
	}{
		{
			name:   "single group",
			groups: []string{"engineering"},
			want:   []string{"developer"},
		},
		{
			name:   "union is deduplicated and sorted",
			groups: []string{"admins", "engineering", "support"},
			want:   []string{"admin", "developer", "viewer"},
		},
		{
			name:   "unmapped groups fall back to the default role",
			groups: []string{"marketing", "sales"},
			want:   []string{DefaultRole},
		},
		{
			name:   "no groups falls back to the default role",
			groups: nil,
			want:   []string{DefaultRole},
		},
		{
			name:   "mapped and unmapped groups mix",
			groups: []string{"marketing", "engineering"},
			want:   []string{"developer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapRoles(tt.groups, mapping))
		})
	}
}

func TestMapRolesNilMapping(t *testing.T) {
	assert.Equal(t, []string{DefaultRole}, MapRoles([]string{"engineering"}, nil))
}
