package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/wml"
)

// setupVersions uploads a sequence of full versions of add-on "x" and
// returns the server.
func setupVersions(t *testing.T, versions ...string) *Server {
	t.Helper()
	s := newTestServer(t, "")
	for _, v := range versions {
		requireMessage(t, doRequest(t, s, "upload",
			uploadBody("x", v, contentTree("x", map[string]string{"main.cfg": "rev " + v}))),
			"Add-on accepted.")
	}
	return s
}

func campaignRequest(name, version, fromVersion string) *wml.Node {
	body := wml.New()
	body.SetAttr("name", name)
	if version != "" {
		body.SetAttr("version", version)
	}
	if fromVersion != "" {
		body.SetAttr("from_version", fromVersion)
	}
	return body
}

func TestDownloadUnknownAddon(t *testing.T) {
	s := newTestServer(t, "")
	reply := doRequest(t, s, "request_campaign", campaignRequest("nope", "", ""))
	require.NotNil(t, reply.First("error"))
}

func TestDownloadHiddenAddon(t *testing.T) {
	s := setupVersions(t, "1.0")
	s.store.Get("x").SetBoolAttr("hidden", true)
	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "", ""))
	require.NotNil(t, reply.First("error"))
}

func TestDownloadFullPack(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1")

	// No version requested: the latest full pack is streamed.
	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "", ""))
	require.Nil(t, reply.First("error"))
	require.Equal(t, "rev 1.1", reply.FirstWhere("dir", "x").FirstWhere("file", "main.cfg").Attr("contents"))

	// The full download bumped the downloads counter.
	require.Equal(t, int64(1), s.store.Get("x").IntAttr("downloads", 0))
}

func TestDownloadExactTargetRequired(t *testing.T) {
	s := setupVersions(t, "1.0", "1.2")

	// The download target never resolves fuzzily.
	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.1", ""))
	require.NotNil(t, reply.First("error"))
}

func TestDownloadDelta(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1")

	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.1", "1.0"))
	require.Nil(t, reply.First("error"))

	// A delta reply carries removelist/addlist payloads, not the pack tree,
	// and its content equals the stored update pack.
	require.True(t, reply.HasChild("addlist"))
	require.False(t, reply.HasChild("dir"))

	addon := s.store.Get("x")
	packInfo := findUpdatePack(addon, "1.0", "1.1")
	require.NotNil(t, packInfo)
	stored := s.readPack(t, "data/x/"+packInfo.Attr("filename"))
	require.True(t, stored.Equal(reply))

	// Upgrade downloads don't count toward the stats.
	require.Equal(t, int64(0), addon.IntAttr("downloads", 0))
}

func TestDownloadDeltaChain(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1", "1.2")

	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.2", "1.0"))
	require.Nil(t, reply.First("error"))
	require.Equal(t, 2, reply.ChildCount("addlist"), "one step per consecutive pair")

	// Applying the chain onto the 1.0 full pack yields the 1.2 pack.
	current := s.readPack(t, "data/x/"+campaignd.FullPackFilename("1.0"))
	applyDelta(current, reply)
	want := s.readPack(t, "data/x/"+campaignd.FullPackFilename("1.2"))
	require.True(t, want.Equal(current))
}

func TestDownloadFallsBackToFullOnMissingPackFile(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1")

	addon := s.store.Get("x")
	packInfo := findUpdatePack(addon, "1.0", "1.1")
	require.NoError(t, s.fs.Remove("data/x/"+packInfo.Attr("filename")))

	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.1", "1.0"))
	require.Nil(t, reply.First("error"))

	// The client silently receives the 1.1 full pack instead.
	require.False(t, reply.HasChild("addlist"))
	require.Equal(t, "rev 1.1", reply.FirstWhere("dir", "x").FirstWhere("file", "main.cfg").Attr("contents"))
}

func TestDownloadFallsBackToFullOnChainGap(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1", "1.2")

	// Drop the middle link entirely (child and file).
	addon := s.store.Get("x")
	s.removeUpdatePacks(addon, "data/x", func(p *wml.Node) bool {
		return p.Attr("from") == "1.1" && p.Attr("to") == "1.2"
	})

	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.2", "1.0"))
	require.Nil(t, reply.First("error"))
	require.False(t, reply.HasChild("addlist"))
	require.NotNil(t, reply.FirstWhere("dir", "x"))
}

func TestDownloadFallsBackToFullOnOversizeDelta(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1")

	// Inflate the stored update pack well past the full pack size.
	addon := s.store.Get("x")
	packInfo := findUpdatePack(addon, "1.0", "1.1")
	big := wml.New()
	bigAdd := big.AddChild("addlist")
	f := bigAdd.AddChild("file")
	f.SetAttr("name", "huge.bin")
	f.SetAttr("contents", randomish(1<<20))
	w, err := s.fs.Writer("data/x/" + packInfo.Attr("filename"))
	require.NoError(t, err)
	require.NoError(t, wml.WriteGzip(w, big, 0))
	require.NoError(t, w.Close())

	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.1", "1.0"))
	require.Nil(t, reply.First("error"))
	require.False(t, reply.HasChild("addlist"))
	require.NotNil(t, reply.FirstWhere("dir", "x"))
}

// randomish returns n bytes of poorly-compressible text.
func randomish(n int) string {
	buf := make([]byte, n)
	state := uint64(0x9e3779b97f4a7c15)
	for i := range buf {
		state = state*6364136223846793005 + 1442695040888963407
		buf[i] = 'A' + byte(state>>57)%26
	}
	return string(buf)
}

func TestDownloadFromEqualsTarget(t *testing.T) {
	s := setupVersions(t, "1.0", "1.1")

	// A degenerate range falls back to the full pack.
	reply := doRequest(t, s, "request_campaign", campaignRequest("x", "1.1", "1.1"))
	require.Nil(t, reply.First("error"))
	require.NotNil(t, reply.FirstWhere("dir", "x"))
}

func TestDownloadStatsExemptAndOptOut(t *testing.T) {
	dir := t.TempDir()
	s, err := newTestServerAt(t, dir, "stats_exempt_ips=\"10.0.0.*\"\n")
	require.NoError(t, err)
	requireMessage(t, doRequest(t, s, "upload",
		uploadBody("x", "1.0", contentTree("x", map[string]string{"main.cfg": "x"}))),
		"Add-on accepted.")

	// Exempt address.
	doRequestFrom(t, s, "request_campaign", campaignRequest("x", "", ""), "10.0.0.9")
	require.Equal(t, int64(0), s.store.Get("x").IntAttr("downloads", -1))

	// Explicit opt-out.
	body := campaignRequest("x", "", "")
	body.SetBoolAttr("increase_downloads", false)
	doRequest(t, s, "request_campaign", body)
	require.Equal(t, int64(0), s.store.Get("x").IntAttr("downloads", -1))

	// Plain download counts.
	doRequest(t, s, "request_campaign", campaignRequest("x", "", ""))
	require.Equal(t, int64(1), s.store.Get("x").IntAttr("downloads", -1))
}

func TestCampaignHash(t *testing.T) {
	s := setupVersions(t, "1.0", "1.2")

	hashReq := func(version string) *wml.Node {
		body := wml.New()
		body.SetAttr("name", "x")
		if version != "" {
			body.SetAttr("version", version)
		}
		return doRequest(t, s, "request_campaign_hash", body)
	}

	// Exact version.
	reply := hashReq("1.0")
	require.Nil(t, reply.First("error"))
	entry := reply.FirstWhere("dir", "x").FirstWhere("file", "main.cfg")
	require.NotNil(t, entry)
	require.Equal(t, campaignd.MD5Hex("rev 1.0"), entry.Attr("hash"))

	// Unknown version falls back to the nearest older one.
	reply = hashReq("1.1")
	require.Nil(t, reply.First("error"))
	entry = reply.FirstWhere("dir", "x").FirstWhere("file", "main.cfg")
	require.Equal(t, campaignd.MD5Hex("rev 1.0"), entry.Attr("hash"))

	// No version requested: the latest index.
	reply = hashReq("")
	require.Nil(t, reply.First("error"))
	entry = reply.FirstWhere("dir", "x").FirstWhere("file", "main.cfg")
	require.Equal(t, campaignd.MD5Hex("rev 1.2"), entry.Attr("hash"))

	// Nothing older than the requested version.
	reply = hashReq("0.1")
	require.NotNil(t, reply.First("error"))
}

func TestDeleteScenario(t *testing.T) {
	s := setupVersions(t, "1.0")

	del := wml.New()
	del.SetAttr("name", "x")
	del.SetAttr("passphrase", "wrong")
	reply := doRequest(t, s, "delete", del)
	require.Equal(t, "The passphrase is incorrect.", reply.First("error").Attr("message"))
	require.NotNil(t, s.store.Get("x"), "add-on survives a failed delete")

	del.SetAttr("passphrase", "sesame")
	requireMessage(t, doRequest(t, s, "delete", del), "Add-on deleted.")
	require.Nil(t, s.store.Get("x"))
	require.False(t, s.fs.Exists("data/x"))
}
