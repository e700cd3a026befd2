package hrsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeFilter_Applicable(t *testing.T) {
	filter := NewScopeFilter("Sells", nil)

	cases := []struct {
		name string
		ev   UpdateEvent
		want bool
	}{
		{
			name: "user event in domain scope",
			ev:   UpdateEvent{Kind: EventUserCreated, EventScope: "Sells"},
			want: true,
		},
		{
			name: "user event in foreign scope",
			ev:   UpdateEvent{Kind: EventUserCreated, EventScope: "Patrimonial"},
			want: false,
		},
		{
			name: "update scope override qualifies",
			ev:   UpdateEvent{Kind: EventUserUpdated, EventScope: "All", UpdateScope: "Sells"},
			want: true,
		},
		{
			name: "both scopes foreign",
			ev:   UpdateEvent{Kind: EventUserUpdated, EventScope: "All", UpdateScope: "HumanResource"},
			want: false,
		},
		{
			name: "enterprise event passes the scope gate",
			ev:   UpdateEvent{Kind: EventEnterpriseDeleted, EventScope: "Sells"},
			want: true,
		},
		{
			name: "login events are never synced",
			ev:   UpdateEvent{Kind: EventUserLogin, EventScope: "Sells"},
			want: false,
		},
		{
			name: "unknown kind",
			ev:   UpdateEvent{Kind: EventKind("SOMETHING_ELSE"), EventScope: "Sells"},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, filter.Applicable(&tc.ev))
		})
	}
}
