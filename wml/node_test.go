package wml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttrs(t *testing.T) {
	n := New()
	require.Equal(t, "", n.Attr("missing"))
	require.False(t, n.HasAttr("missing"))

	n.SetAttr("a", "1")
	n.SetAttr("b", "2")
	n.SetAttr("a", "3")

	require.Equal(t, "3", n.Attr("a"))
	require.Equal(t, "2", n.Attr("b"))

	var keys []string
	for k := range n.Attrs() {
		keys = append(keys, k)
	}
	require.Equal(t, []string{"a", "b"}, keys, "SetAttr preserves position")

	n.RemoveAttr("a")
	require.False(t, n.HasAttr("a"))
}

func TestChildren(t *testing.T) {
	n := New()
	c1 := n.AddChild("file")
	c1.SetAttr("name", "one")
	c2 := n.AddChild("file")
	c2.SetAttr("name", "two")
	n.AddChild("dir").SetAttr("name", "sub")

	require.Equal(t, 2, n.ChildCount("file"))
	require.True(t, n.HasChild("dir"))
	require.Nil(t, n.First("missing"))
	require.Same(t, c1, n.First("file"))
	require.Same(t, c2, n.FirstWhere("file", "two"))
	require.Nil(t, n.FirstWhere("file", "three"))
}

func TestTakeMovesOwnership(t *testing.T) {
	n := New()
	data := n.AddChild("data")
	data.SetAttr("x", "y")

	got := n.Take("data")
	require.Same(t, data, got)
	require.False(t, n.HasChild("data"))
	require.Nil(t, n.Take("data"))
}

func TestRemoveChildren(t *testing.T) {
	n := New()
	for _, name := range []string{"a", "b", "c"} {
		n.AddChild("file").SetAttr("name", name)
	}

	removed := n.RemoveChildren("file", func(c *Node) bool {
		return c.Attr("name") == "b"
	})
	require.Equal(t, 1, removed)
	require.Equal(t, 2, n.ChildCount("file"))

	n.ClearChildren("file")
	require.Equal(t, 0, n.ChildCount("file"))
}

func TestAppend(t *testing.T) {
	a := New()
	a.SetAttr("k", "old")
	a.AddChild("removelist")

	b := New()
	b.SetAttr("k", "new")
	b.AddChild("addlist")

	a.Append(b)
	require.Equal(t, "new", a.Attr("k"))
	require.True(t, a.HasChild("removelist"))
	require.True(t, a.HasChild("addlist"))
	require.True(t, b.Empty())
}

func TestCloneIsDeep(t *testing.T) {
	n := New()
	n.SetAttr("a", "1")
	n.AddChild("dir").SetAttr("name", "x")

	c := n.Clone()
	c.First("dir").SetAttr("name", "changed")
	require.Equal(t, "x", n.First("dir").Attr("name"))
}

func TestEqualIgnoresOrder(t *testing.T) {
	a := New()
	a.SetAttr("x", "1")
	a.SetAttr("y", "2")
	a.AddChild("file").SetAttr("name", "one")
	a.AddChild("file").SetAttr("name", "two")

	b := New()
	b.SetAttr("y", "2")
	b.SetAttr("x", "1")
	b.AddChild("file").SetAttr("name", "two")
	b.AddChild("file").SetAttr("name", "one")

	require.True(t, a.Equal(b))

	b.AddChild("file").SetAttr("name", "three")
	require.False(t, a.Equal(b))
}

func TestEmpty(t *testing.T) {
	n := New()
	require.True(t, n.Empty())
	n.SetAttr("a", "")
	require.False(t, n.Empty())

	var nilNode *Node
	require.True(t, nilNode.Empty())
}
