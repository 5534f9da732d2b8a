// Package pack implements the add-on pack codec: full pack and hash index
// serialization, delta (removelist/addlist) application, update pack
// synthesis, and the content checks run against uploaded pack trees.
//
// A pack tree is a document whose nodes are [dir] children (attribute
// "name") and [file] children (attributes "name" and "contents"). The root
// carries an empty-string "name" attribute, which the serialization format
// requires.
package pack

import (
	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/storage"
	"github.com/hanko213/campaignd/wml"
)

// WriteFullPack gzip-writes doc to path via atomic commit, ensuring the
// root "name" attribute is present and empty.
func WriteFullPack(dir *storage.Dir, path string, doc *wml.Node, level int) error {
	doc.SetAttr("name", "")
	return writeGzipAtomic(dir, path, doc, level)
}

// WriteIndex derives the content hash list of doc and gzip-writes it to
// path via atomic commit.
func WriteIndex(dir *storage.Dir, path string, doc *wml.Node, level int) error {
	return writeGzipAtomic(dir, path, HashList(doc), level)
}

func writeGzipAtomic(dir *storage.Dir, path string, doc *wml.Node, level int) error {
	w, err := dir.Writer(path)
	if err != nil {
		return err
	}
	if err := wml.WriteGzip(w, doc, level); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// HashList returns a tree mirroring the directory structure of doc where
// every [file] entry carries the MD5 digest of its contents instead of the
// contents themselves. Clients use it to detect which files changed.
func HashList(doc *wml.Node) *wml.Node {
	out := wml.New()
	out.SetAttr("name", doc.Attr("name"))
	hashListInto(out, doc)
	return out
}

func hashListInto(out, in *wml.Node) {
	for f := range in.Children("file") {
		entry := out.AddChild("file")
		entry.SetAttr("name", f.Attr("name"))
		entry.SetAttr("hash", campaignd.MD5Hex(f.Attr("contents")))
	}
	for d := range in.Children("dir") {
		entry := out.AddChild("dir")
		entry.SetAttr("name", d.Attr("name"))
		hashListInto(entry, d)
	}
}

// ApplyRemovelist deletes from full every file named in removelist,
// recursing into matching directories and dropping directories that end up
// empty. Targets missing from full are silent no-ops.
func ApplyRemovelist(full, removelist *wml.Node) {
	for f := range removelist.Children("file") {
		name := f.Attr("name")
		full.RemoveChildren("file", func(n *wml.Node) bool {
			return n.Attr("name") == name
		})
	}

	for d := range removelist.Children("dir") {
		name := d.Attr("name")
		target := full.FirstWhere("dir", name)
		if target == nil {
			continue
		}
		ApplyRemovelist(target, d)
		if !hasEntries(target) {
			full.RemoveChildren("dir", func(n *wml.Node) bool {
				return n == target
			})
		}
	}
}

// ApplyAddlist inserts into full every file and directory from addlist.
// A file that already exists is overwritten (addlist wins); directories are
// merged recursively.
func ApplyAddlist(full, addlist *wml.Node) {
	for f := range addlist.Children("file") {
		name := f.Attr("name")
		if existing := full.FirstWhere("file", name); existing != nil {
			existing.SetAttr("contents", f.Attr("contents"))
			continue
		}
		full.AppendChild("file", f.Clone())
	}

	for d := range addlist.Children("dir") {
		name := d.Attr("name")
		target := full.FirstWhere("dir", name)
		if target == nil {
			target = full.AddChild("dir")
			target.SetAttr("name", name)
		}
		ApplyAddlist(target, d)
	}
}

// MakeUpdatePack computes the structural diff carrying from to to:
// a removelist naming everything present in from but absent from to, and an
// addlist with every file that is new or changed in to. Applying the
// removelist and then the addlist to from yields a tree structurally equal
// to to.
func MakeUpdatePack(from, to *wml.Node) (removelist, addlist *wml.Node) {
	removelist = wml.New()
	removelist.SetAttr("name", "")
	addlist = wml.New()
	addlist.SetAttr("name", "")
	diffDir(from, to, removelist, addlist)
	return removelist, addlist
}

func diffDir(from, to, rem, add *wml.Node) {
	for f := range from.Children("file") {
		name := f.Attr("name")
		tf := to.FirstWhere("file", name)
		switch {
		case tf == nil:
			rem.AddChild("file").SetAttr("name", name)
		case tf.Attr("contents") != f.Attr("contents"):
			add.AppendChild("file", tf.Clone())
		}
	}
	for f := range to.Children("file") {
		if from.FirstWhere("file", f.Attr("name")) == nil {
			add.AppendChild("file", f.Clone())
		}
	}

	for d := range from.Children("dir") {
		name := d.Attr("name")
		td := to.FirstWhere("dir", name)
		if td == nil {
			rem.AppendChild("dir", nameMirror(d))
			continue
		}
		subRem := wml.New()
		subRem.SetAttr("name", name)
		subAdd := wml.New()
		subAdd.SetAttr("name", name)
		diffDir(d, td, subRem, subAdd)
		if hasEntries(subRem) {
			rem.AppendChild("dir", subRem)
		}
		// ApplyRemovelist drops a directory it empties, so a directory that
		// is empty in to is re-created through the addlist.
		if hasEntries(subAdd) || (!hasEntries(td) && hasEntries(subRem)) {
			add.AppendChild("dir", subAdd)
		}
	}
	for d := range to.Children("dir") {
		if from.FirstWhere("dir", d.Attr("name")) == nil {
			add.AppendChild("dir", d.Clone())
		}
	}
}

// nameMirror returns a tree with the same directory/file names as n but no
// file contents, suitable as a removelist entry for a whole subtree.
func nameMirror(n *wml.Node) *wml.Node {
	out := wml.New()
	out.SetAttr("name", n.Attr("name"))
	for f := range n.Children("file") {
		out.AddChild("file").SetAttr("name", f.Attr("name"))
	}
	for d := range n.Children("dir") {
		out.AppendChild("dir", nameMirror(d))
	}
	return out
}

func hasEntries(n *wml.Node) bool {
	for range n.AllChildren() {
		return true
	}
	return false
}
