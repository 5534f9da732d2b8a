package pack

import "github.com/hanko213/campaignd/wml"

const licenseFilename = "COPYING.txt"

// defaultLicense is the notice written into packs uploaded without a
// license file of their own. Server policy requires all hosted content to
// be GPL-licensed, so the default is the GPL notice.
const defaultLicense = `This add-on is distributed under the terms of the
GNU General Public License, version 2 or (at your option) any later version.

This program is free software; you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation; either version 2 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

The full text of the license is available at:
https://www.gnu.org/licenses/old-licenses/gpl-2.0.html
`

// AddLicense inserts the default GPL license file into doc unless a license
// file is already present at the top level of the pack (either directly
// under the root or inside a top-level directory). The file is placed in
// the first top-level directory when one exists, mirroring the usual pack
// shape where all content lives under a single named directory.
func AddLicense(doc *wml.Node) {
	if hasLicenseFile(doc) {
		return
	}
	for d := range doc.Children("dir") {
		if hasLicenseFile(d) {
			return
		}
	}

	target := doc.First("dir")
	if target == nil {
		target = doc
	}
	file := target.AddChild("file")
	file.SetAttr("name", licenseFilename)
	file.SetAttr("contents", defaultLicense)
}

func hasLicenseFile(dir *wml.Node) bool {
	for f := range dir.Children("file") {
		if FoldName(f.Attr("name")) == FoldName(licenseFilename) {
			return true
		}
	}
	return false
}
