package service

import (
	"testing"

	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/stretchr/testify/require"
)

func TestMapExternalStatus(t *testing.T) {
	cases := map[string]domain.Status{
		"active":             domain.StatusActive,
		"trialing":           domain.StatusTrialing,
		"past_due":           domain.StatusPastDue,
		"unpaid":             domain.StatusPastDue,
		"canceled":           domain.StatusCanceled,
		"incomplete_expired": domain.StatusExpired,
		"incomplete":         domain.StatusPastDue,
		"paused":             domain.StatusPastDue,
		" Active ":           domain.StatusActive,
		"something_new":      domain.StatusActive,
		"":                   domain.StatusActive,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, MapExternalStatus(in))
			require.Equal(t, want, MapExternalStatus(in), "mapping must be stable")
		})
	}
}
