package pack

import "github.com/hanko213/campaignd/wml"

// FindTranslations detects shipped translation catalogues in a full pack
// and flips the supported flag on the matching [translation] children of
// the add-on metadata. Translations declared in metadata but without a
// catalogue in the pack stay unsupported.
//
// A catalogue is a locale-named directory under any "translations"
// directory in the pack.
func FindTranslations(full, addon *wml.Node) {
	locales := map[string]struct{}{}
	collectLocales(full, locales)

	for tr := range addon.Children("translation") {
		if _, ok := locales[tr.Attr("language")]; ok {
			tr.SetBoolAttr("supported", true)
		}
	}
}

func collectLocales(dir *wml.Node, locales map[string]struct{}) {
	for d := range dir.Children("dir") {
		if d.Attr("name") == "translations" {
			for locale := range d.Children("dir") {
				locales[locale.Attr("name")] = struct{}{}
			}
			continue
		}
		collectLocales(d, locales)
	}
}
