package pack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanko213/campaignd/wml"
)

func TestAddonNameLegal(t *testing.T) {
	for _, name := range []string{"My_Addon", "addon-2", "Éra_Nueva", "a.b"} {
		require.True(t, AddonNameLegal(name), name)
	}
	for _, name := range []string{"", ".", "..", "a/b", "a\\b", "a:b", "a~b", "has space", "tab\tname", "up..dir"} {
		require.False(t, AddonNameLegal(name), name)
	}
}

func TestFilenameLegal(t *testing.T) {
	require.True(t, FilenameLegal("unit.cfg"))
	require.True(t, FilenameLegal("COPYING.txt"))
	for _, name := range []string{"con|fig", "a*b", "what?", "<tag>", "quo\"te", "ctrl\x01"} {
		require.False(t, FilenameLegal(name), name)
	}
}

func TestIsMarkupChar(t *testing.T) {
	require.True(t, IsMarkupChar('<'))
	require.True(t, IsMarkupChar('&'))
	require.False(t, IsMarkupChar('A'))
	require.False(t, IsMarkupChar('*'))
}

func TestFindIllegalNames(t *testing.T) {
	tree := wml.New()
	d := addDir(tree, "ok")
	addFile(d, "bad|name", "x")
	addFile(d, "fine.cfg", "x")
	addDir(d, "also/bad")

	got := FindIllegalNames(tree, nil)
	require.Equal(t, []string{"also/bad", "bad|name"}, got)

	require.Nil(t, FindIllegalNames(nil, nil))
}

func TestFindCaseConflicts(t *testing.T) {
	tree := wml.New()
	d := addDir(tree, "top")
	addFile(d, "Readme.txt", "x")
	addFile(d, "readme.TXT", "x")
	addFile(d, "unrelated.cfg", "x")

	got := FindCaseConflicts(tree)
	require.Equal(t, []string{"Readme.txt", "readme.TXT"}, got)

	// Same names in different directories do not conflict.
	other := wml.New()
	addFile(addDir(other, "a"), "main.cfg", "x")
	addFile(addDir(other, "b"), "MAIN.cfg", "x")
	require.Nil(t, FindCaseConflicts(other))
}
