package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "sk_test_****wxyz", MaskSecret("sk_test_abcdefghwxyz"))
	assert.Equal(t, "whsec_****", MaskSecret("whsec_abc"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "****", MaskEmail("not-an-email"))
	assert.Equal(t, "****", MaskEmail("@example.com"))
}
