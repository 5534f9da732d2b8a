package store

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"

	"github.com/hanko213/campaignd/wml"
)

const (
	saltBytes      = 16
	hashIterations = 8192
	hashBytes      = 32
)

// GenerateHash derives a fresh salt and passphrase hash pair.
func GenerateHash(passphrase string) (salt, hash string) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	salt = hex.EncodeToString(raw)
	return salt, hashPassphrase(passphrase, salt)
}

// VerifyPassphrase recomputes the hash for the stored salt and compares in
// constant time.
func VerifyPassphrase(passphrase, salt, hash string) bool {
	if salt == "" || hash == "" {
		return false
	}
	computed := hashPassphrase(passphrase, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

func hashPassphrase(passphrase, salt string) string {
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), hashIterations, hashBytes, sha256.New)
	return hex.EncodeToString(key)
}

// Authenticate checks a passphrase against the salt and hash stored on the
// add-on metadata.
func Authenticate(addon *wml.Node, passphrase string) bool {
	return VerifyPassphrase(passphrase, addon.Attr("passsalt"), addon.Attr("passhash"))
}

// SetPassphrase writes a fresh salt and hash into the add-on metadata.
func SetPassphrase(addon *wml.Node, passphrase string) {
	salt, hash := GenerateHash(passphrase)
	addon.SetAttr("passsalt", salt)
	addon.SetAttr("passhash", hash)
}
