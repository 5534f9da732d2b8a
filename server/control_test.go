package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanko213/campaignd/store"
)

func TestControlReadonly(t *testing.T) {
	s := newTestServer(t, "")

	require.Equal(t, "read only mode: enabled", s.runControlCommand("readonly yes"))
	require.True(t, s.cfg.ReadOnly)
	require.True(t, s.store.Config().BoolAttr("read_only", false))

	require.Equal(t, "read only mode: disabled", s.runControlCommand("readonly no"))
	require.False(t, s.cfg.ReadOnly)

	// Without an argument the command only reports the current state.
	require.Equal(t, "read only mode: disabled", s.runControlCommand("readonly"))
}

func TestControlHideUnhide(t *testing.T) {
	s := setupVersions(t, "1.0")

	reply := s.runControlCommand("hide x")
	require.Equal(t, "x is now hidden", reply)
	require.True(t, s.store.Get("x").BoolAttr("hidden", false))

	reply = s.runControlCommand("unhide x")
	require.Equal(t, "x is now unhidden", reply)
	require.False(t, s.store.Get("x").BoolAttr("hidden", true))

	require.Contains(t, s.runControlCommand("hide ghost"), "error")
}

func TestControlSetpass(t *testing.T) {
	s := setupVersions(t, "1.0")

	require.Equal(t, "passphrase set for x", s.runControlCommand("setpass x newsecret"))
	require.True(t, store.Authenticate(s.store.Get("x"), "newsecret"))
	require.False(t, store.Authenticate(s.store.Get("x"), "sesame"))

	require.Contains(t, s.runControlCommand("setpass ghost pw"), "error")
	require.Contains(t, s.runControlCommand("setpass x"), "error")
}

func TestControlSetattrRefusals(t *testing.T) {
	s := setupVersions(t, "1.0")

	for _, cmd := range []string{
		"setattr x name Renamed",
		"setattr x version 9.9",
		"setattr x passphrase pw",
		"setattr x passhash h",
		"setattr x passsalt s",
		"setattr x no_such_attr v",
	} {
		require.Contains(t, s.runControlCommand(cmd), "error", cmd)
	}

	// Declared attributes can be changed, spaces included.
	require.Equal(t, "set description on x", s.runControlCommand("setattr x description A new description"))
	require.Equal(t, "A new description", s.store.Get("x").Attr("description"))
}

func TestControlDelete(t *testing.T) {
	s := setupVersions(t, "1.0")

	require.Equal(t, "deleted x", s.runControlCommand("delete x"))
	require.Nil(t, s.store.Get("x"))
	require.Contains(t, s.runControlCommand("delete x"), "error")
}

func TestControlFlushAndUnknown(t *testing.T) {
	s := setupVersions(t, "1.0")
	require.Equal(t, "flushed", s.runControlCommand("flush"))
	require.Contains(t, s.runControlCommand("frobnicate"), "error")
	require.Contains(t, s.runControlCommand("reload bogus"), "error")
	require.Equal(t, "reloaded blacklist", s.runControlCommand("reload blacklist"))
}

func TestControlShutdown(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, "shutting down", s.runControlCommand("shut_down"))
	select {
	case <-s.shutdown:
	default:
		t.Fatal("shutdown channel not closed")
	}
}
