package campaignd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMD5Hex(t *testing.T) {
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", MD5Hex("hello"))
	require.Equal(t, "e4c2e8edac362acab7123654b9e73432", MD5Hex("1.0"))
}

func TestPackFilenames(t *testing.T) {
	require.Equal(t, "full_pack_e4c2e8edac362acab7123654b9e73432.gz", FullPackFilename("1.0"))
	require.Equal(t, "full_pack_e4c2e8edac362acab7123654b9e73432.hash.gz", IndexFilename("1.0"))

	// The update pack name hashes the bare concatenation of both versions.
	require.Equal(t, "update_pack_0485d14b557b8292dbe5336a1ed85ade.gz", UpdatePackFilename("1.0", "1.1"))
	require.Equal(t, UpdatePackFilename("1.0", "1.1"), "update_pack_"+MD5Hex("1.01.1")+".gz")
}

func TestIndexFromFullPackFilename(t *testing.T) {
	require.Equal(t, "full_pack_abc.hash.gz", IndexFromFullPackFilename("full_pack_abc.gz"))
	require.Equal(t, IndexFilename("1.1"), IndexFromFullPackFilename(FullPackFilename("1.1")))
}
