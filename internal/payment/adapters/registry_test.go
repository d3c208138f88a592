package adapters

import (
	"net/http"
	"testing"

	"github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

type namedVerifier string

func (v namedVerifier) Provider() string { return string(v) }

func (namedVerifier) Verify([]byte, http.Header) (*domain.Event, error) { return nil, nil }

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	registry := NewRegistry(namedVerifier("Stripe"), nil, namedVerifier(" "))

	verifier, err := registry.Verifier(" stripe ")
	require.NoError(t, err)
	require.Equal(t, "Stripe", verifier.Provider())
	require.True(t, registry.ProviderExists("STRIPE"))

	_, err = registry.Verifier("adyen")
	require.ErrorIs(t, err, domain.ErrProviderNotFound)

	var empty *Registry
	require.False(t, empty.ProviderExists("stripe"))
}
