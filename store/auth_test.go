package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanko213/campaignd/wml"
)

func TestGenerateHashAndVerify(t *testing.T) {
	salt, hash := GenerateHash("hunter2")
	require.NotEmpty(t, salt)
	require.NotEmpty(t, hash)

	require.True(t, VerifyPassphrase("hunter2", salt, hash))
	require.False(t, VerifyPassphrase("wrong", salt, hash))
	require.False(t, VerifyPassphrase("hunter2", "othersalt", hash))
}

func TestGenerateHashFreshSalt(t *testing.T) {
	salt1, hash1 := GenerateHash("pw")
	salt2, hash2 := GenerateHash("pw")
	require.NotEqual(t, salt1, salt2)
	require.NotEqual(t, hash1, hash2)
}

func TestVerifyRejectsUnsetCredentials(t *testing.T) {
	require.False(t, VerifyPassphrase("pw", "", ""))
}

func TestAddonAuthentication(t *testing.T) {
	addon := wml.New()
	require.False(t, Authenticate(addon, "pw"), "never-uploaded add-on has no credentials")

	SetPassphrase(addon, "pw")
	require.True(t, addon.HasAttr("passsalt"))
	require.True(t, addon.HasAttr("passhash"))
	require.True(t, Authenticate(addon, "pw"))
	require.False(t, Authenticate(addon, "p\x00w"))

	// Re-keying invalidates the old passphrase.
	SetPassphrase(addon, "newpw")
	require.False(t, Authenticate(addon, "pw"))
	require.True(t, Authenticate(addon, "newpw"))
}
