package pack

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hanko213/campaignd/wml"
)

// FoldName lowercases a name for case-insensitive comparison with full
// Unicode folding. Add-on ids and pack entry names compare folded.
// A cases.Caser carries state, so each call uses a fresh one.
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// IsMarkupChar reports whether r is a text markup control character that
// must not lead an add-on name or title.
func IsMarkupChar(r rune) bool {
	return r == '<' || r == '&'
}

// AddonNameLegal reports whether name may be used as an add-on id. Ids
// become directory names under data/, so path separators, parent
// references and whitespace are rejected.
func AddonNameLegal(name string) bool {
	if name == "" || name == "." {
		return false
	}
	if strings.ContainsAny(name, "/:\\~ \r\n\v\t") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

// FilenameLegal reports whether name may appear as a file or directory name
// inside a pack.
func FilenameLegal(name string) bool {
	if !AddonNameLegal(name) {
		return false
	}
	if strings.ContainsAny(name, "\"*?<>|") {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7F {
			return false
		}
	}
	return true
}

// FindIllegalNames scans the given pack trees and returns every file or
// directory name that fails FilenameLegal, sorted and deduplicated. Nil
// trees are skipped.
func FindIllegalNames(trees ...*wml.Node) []string {
	found := map[string]struct{}{}
	for _, tree := range trees {
		if tree == nil {
			continue
		}
		walkNames(tree, func(name string) {
			if !FilenameLegal(name) {
				found[name] = struct{}{}
			}
		})
	}
	return sortedKeys(found)
}

// FindCaseConflicts scans the given pack trees for entries within the same
// directory whose names differ only by letter case, returning the offending
// names sorted and deduplicated. Nil trees are skipped.
func FindCaseConflicts(trees ...*wml.Node) []string {
	found := map[string]struct{}{}
	for _, tree := range trees {
		if tree == nil {
			continue
		}
		caseConflictsIn(tree, found)
	}
	return sortedKeys(found)
}

func caseConflictsIn(dir *wml.Node, found map[string]struct{}) {
	seen := map[string]string{}
	check := func(name string) {
		folded := FoldName(name)
		if prev, ok := seen[folded]; ok && prev != name {
			found[prev] = struct{}{}
			found[name] = struct{}{}
			return
		}
		seen[folded] = name
	}
	for f := range dir.Children("file") {
		check(f.Attr("name"))
	}
	for d := range dir.Children("dir") {
		check(d.Attr("name"))
		caseConflictsIn(d, found)
	}
}

func walkNames(dir *wml.Node, visit func(string)) {
	for f := range dir.Children("file") {
		visit(f.Attr("name"))
	}
	for d := range dir.Children("dir") {
		visit(d.Attr("name"))
		walkNames(d, visit)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
