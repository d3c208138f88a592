package service

import (
	"strings"

	"github.com/smallbiznis/seatly/internal/subscription/domain"
)

var externalStatuses = map[string]domain.Status{
	"incomplete":         domain.StatusPastDue,
	"incomplete_expired": domain.StatusExpired,
	"trialing":           domain.StatusTrialing,
	"active":             domain.StatusActive,
	"past_due":           domain.StatusPastDue,
	"canceled":           domain.StatusCanceled,
	"unpaid":             domain.StatusPastDue,
	"paused":             domain.StatusPastDue,
}

// MapExternalStatus maps a processor subscription status to a local one.
// Unknown values map to active.
func MapExternalStatus(status string) domain.Status {
	if mapped, ok := externalStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
		return mapped
	}
	return domain.StatusActive
}
