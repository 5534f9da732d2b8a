package campaignd

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// MD5Hex returns the lowercase hex digest of the MD5 hash of s.
//
// The add-on distribution format derives every pack filename from an MD5
// digest of the version string(s), so this is fixed regardless of what
// stronger hashes exist.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FullPackFilename returns the on-disk basename of the full pack for the
// given version. Format: full_pack_<md5(version)>.gz
func FullPackFilename(version string) string {
	return "full_pack_" + MD5Hex(version) + ".gz"
}

// IndexFilename returns the on-disk basename of the content hash index for
// the given version. Format: full_pack_<md5(version)>.hash.gz
func IndexFilename(version string) string {
	return "full_pack_" + MD5Hex(version) + ".hash.gz"
}

// UpdatePackFilename returns the on-disk basename of the update pack
// carrying oldVersion to newVersion. The two version strings are
// concatenated with no separator before hashing.
// Format: update_pack_<md5(old || new)>.gz
func UpdatePackFilename(oldVersion, newVersion string) string {
	return "update_pack_" + MD5Hex(oldVersion+newVersion) + ".gz"
}

// IndexFromFullPackFilename returns the hash index counterpart for a full
// pack basename, replacing the final extension with ".hash.gz".
func IndexFromFullPackFilename(packFilename string) string {
	if dot := strings.LastIndexByte(packFilename, '.'); dot >= 0 {
		return packFilename[:dot] + ".hash.gz"
	}
	return packFilename
}
