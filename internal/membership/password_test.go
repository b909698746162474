package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.Contains(t, encoded, credentialScheme+"$")

	ok, err := verifyPassword("correct horse", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("battery staple", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	a, err := hashPassword("same")
	require.NoError(t, err)
	b, err := hashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	_, err := verifyPassword("pw", "plaintext")
	assert.ErrorIs(t, err, errMalformedCredential)
}
