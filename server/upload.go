package server

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/pack"
	"github.com/hanko213/campaignd/store"
	"github.com/hanko213/campaignd/telemetry"
	"github.com/hanko213/campaignd/wml"
)

// addonTypes is the closed set of recognized add-on kinds.
var addonTypes = map[string]struct{}{
	"campaign":       {},
	"scenario":       {},
	"campaign_sp_mp": {},
	"campaign_mp":    {},
	"scenario_mp":    {},
	"map_pack":       {},
	"era":            {},
	"faction":        {},
	"mod_mp":         {},
	"media":          {},
	"other":          {},
}

// uploadedAttrs are the metadata attributes copied verbatim from an upload.
// Every one of them is set on the add-on even when absent from the upload
// (as the empty string); the admin setattr command relies on recognized
// attributes always being declared.
var uploadedAttrs = []string{
	"title", "name", "author", "description", "version", "icon",
	"translate", "dependencies", "type", "tags", "email",
}

// haveWML reports whether a child node exists and is non-empty.
func haveWML(n *wml.Node) bool {
	return n != nil && !n.Empty()
}

// validateUpload runs the upload checks in their fixed order, returning
// the first failure. On success existing is the add-on the upload updates
// (nil for a new add-on). extraData lists offending names where a check
// produces them.
func (s *Server) validateUpload(req request) (status campaignd.AddonCheckStatus, existing *wml.Node, extraData string) {
	if s.cfg.ReadOnly {
		req.logger.Info("validation error: uploads not permitted in read-only mode")
		return campaignd.StatusServerReadOnly, nil, ""
	}

	upload := req.cfg
	data := upload.First("data")
	removelist := upload.First("removelist")
	addlist := upload.First("addlist")
	isDelta := haveWML(removelist) || haveWML(addlist)

	name := upload.Attr("name")

	if !utf8.ValidString(name) {
		req.logger.Info("validation error: bad UTF-8 in add-on name")
		return campaignd.StatusInvalidUTF8Name, nil, ""
	}

	lcName := pack.FoldName(name)
	for _, id := range s.store.Ids() {
		if !utf8.ValidString(id) {
			req.logger.Error("validation error: add-ons list has bad UTF-8, this is a server side issue")
			return campaignd.StatusServerAddonsList, nil, ""
		}
		if pack.FoldName(id) == lcName {
			existing = s.store.Get(id)
			break
		}
	}

	// Auth and block-list based checks go first.

	if upload.Attr("passphrase") == "" {
		req.logger.Info("validation error: no passphrase specified")
		return campaignd.StatusNoPassphrase, nil, ""
	}

	if existing != nil && !store.Authenticate(existing, upload.Attr("passphrase")) {
		req.logger.Info("validation error: passphrase does not match")
		return campaignd.StatusUnauthorized, nil, ""
	}

	if existing != nil && existing.BoolAttr("hidden", false) {
		req.logger.Info("validation error: add-on is hidden")
		return campaignd.StatusDenied, nil, ""
	}

	for _, attr := range []string{"title", "description", "author", "email"} {
		if !utf8.ValidString(upload.Attr(attr)) {
			req.logger.Info("validation error: invalid UTF-8 sequence in publish information")
			return campaignd.StatusInvalidUTF8Attribute, nil, ""
		}
	}

	if s.blacklist.IsBlacklisted(name,
		upload.Attr("title"),
		upload.Attr("description"),
		upload.Attr("author"),
		req.addr,
		upload.Attr("email")) {
		req.logger.Info("validation error: blacklisted uploader or publish information")
		return campaignd.StatusDenied, nil, ""
	}

	// Structure and syntax checks follow.

	if !isDelta && !haveWML(data) {
		req.logger.Info("validation error: no add-on data")
		return campaignd.StatusEmptyPack, nil, ""
	}

	if !pack.AddonNameLegal(name) {
		req.logger.Info("validation error: invalid add-on name")
		return campaignd.StatusBadName, nil, ""
	}

	if leadingMarkup(name) {
		req.logger.Info("validation error: add-on name starts with an illegal formatting character")
		return campaignd.StatusNameHasMarkup, nil, ""
	}

	if upload.Attr("title") == "" {
		req.logger.Info("validation error: no add-on title specified")
		return campaignd.StatusNoTitle, nil, ""
	}

	if leadingMarkup(upload.Attr("title")) {
		req.logger.Info("validation error: add-on title starts with an illegal formatting character")
		return campaignd.StatusTitleHasMarkup, nil, ""
	}

	if _, ok := addonTypes[upload.Attr("type")]; !ok {
		req.logger.Info("validation error: unknown add-on type specified")
		return campaignd.StatusBadType, nil, ""
	}

	if upload.Attr("author") == "" {
		req.logger.Info("validation error: no add-on author specified")
		return campaignd.StatusNoAuthor, nil, ""
	}

	if upload.Attr("version") == "" {
		req.logger.Info("validation error: no add-on version specified")
		return campaignd.StatusNoVersion, nil, ""
	}

	if upload.Attr("description") == "" {
		req.logger.Info("validation error: no add-on description specified")
		return campaignd.StatusNoDescription, nil, ""
	}

	if upload.Attr("email") == "" {
		req.logger.Info("validation error: no add-on email specified")
		return campaignd.StatusNoEmail, nil, ""
	}

	if badNames := pack.FindIllegalNames(data, addlist, removelist); len(badNames) > 0 {
		req.logger.Info("validation error: invalid filenames in add-on pack", "count", len(badNames))
		return campaignd.StatusIllegalFilename, nil, strings.Join(badNames, "\n")
	}

	if badNames := pack.FindCaseConflicts(data, addlist, removelist); len(badNames) > 0 {
		req.logger.Info("validation error: case conflicts in add-on pack", "count", len(badNames))
		return campaignd.StatusFilenameCaseConflict, nil, strings.Join(badNames, "\n")
	}

	if isDelta && existing == nil {
		req.logger.Info("validation error: update pack sent for a non-existent add-on")
		return campaignd.StatusUnexpectedDelta, nil, ""
	}

	return campaignd.StatusSuccess, existing, ""
}

func leadingMarkup(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return pack.IsMarkupChar(r)
}

func (s *Server) handleUpload(req request) {
	uploadTS := time.Now().Unix()
	upload := req.cfg
	name := upload.Attr("name")

	req.logger.Info("validating add-on", "addon", name)

	status, addon, extraData := s.validateUpload(req)
	if status != campaignd.StatusSuccess {
		req.logger.Info("upload aborted due to a failed validation check", "addon", name)
		s.sendErrorStatus(req, "Add-on rejected: "+status.Desc(), extraData, status)
		return
	}

	req.logger.Info("processing add-on", "addon", name)

	fullPack := upload.First("data")
	deltaRemove := upload.First("removelist")
	deltaAdd := upload.First("addlist")

	isDeltaUpload := haveWML(deltaRemove) || haveWML(deltaAdd)
	isExistingUpload := addon != nil

	if !isExistingUpload {
		addon = wml.New()
		addon.SetIntAttr("original_timestamp", uploadTS)
		s.store.Insert(name, addon)
	}

	packKind := "full"
	if isDeltaUpload {
		packKind = "delta"
	}
	uploadKind := "new"
	if isExistingUpload {
		uploadKind = "update"
	}
	req.logger.Info("upload type", "pack", packKind, "kind", uploadKind)

	// General metadata attributes.

	for _, attr := range uploadedAttrs {
		addon.SetAttr(attr, upload.Attr(attr))
	}

	pathstem := "data/" + name
	addon.SetAttr("filename", pathstem)
	addon.SetAttr("upload_ip", req.addr)

	if !isExistingUpload {
		store.SetPassphrase(addon, upload.Attr("passphrase"))
	}

	if !addon.HasAttr("downloads") {
		addon.SetIntAttr("downloads", 0)
	}

	addon.SetIntAttr("timestamp", uploadTS)
	addon.SetIntAttr("uploads", 1+addon.IntAttr("uploads", 0))

	addon.ClearChildren("feedback")
	if urlParams := upload.First("feedback"); urlParams != nil {
		addon.AppendChild("feedback", urlParams.Clone())
	}

	// Metadata translations from the upload. Catalogue detection happens
	// later; until then every declared locale is marked unsupported.

	addon.ClearChildren("translation")
	for localeParams := range upload.Children("translation") {
		if localeParams.Attr("language") == "" {
			continue
		}
		locale := addon.AddChild("translation")
		locale.SetAttr("language", localeParams.Attr("language"))
		locale.SetBoolAttr("supported", false)
		if v := localeParams.Attr("title"); v != "" {
			locale.SetAttr("title", v)
		}
		if v := localeParams.Attr("description"); v != "" {
			locale.SetAttr("description", v)
		}
	}

	// The full content tree for the new version. For a full upload the
	// subtree is moved out of the request document rather than copied; for
	// a delta it is synthesized from the previous full pack further down.

	var rwFullPack *wml.Node
	if haveWML(fullPack) {
		rwFullPack = upload.Take("data")
	} else {
		rwFullPack = wml.New()
	}

	newVersion := addon.Attr("version")
	versionMap := store.VersionMapOf(addon)

	if isDeltaUpload {
		if versionMap.Len() == 0 {
			// Validation already rejected deltas against unknown add-ons,
			// so an empty version table here is server-side corruption.
			req.logger.Error("add-on has an empty version table", "addon", name)
			s.sendErrorStatus(req, "Server error: Cannot process update pack with an empty version table.",
				"", campaignd.StatusServerDeltaNoVersions)
			return
		}

		prevVersion := upload.Attr("from")
		if prevVersion == "" {
			last, _ := versionMap.Last()
			prevVersion = last.Version
		} else if _, ok := versionMap.Find(campaignd.ParseVersion(prevVersion)); !ok {
			// The requested base version is unknown; use the newest older
			// version, or the newest overall when nothing is older.
			if rec, ok := versionMap.NearestOlder(campaignd.ParseVersion(prevVersion)); ok {
				prevVersion = rec.Version
			} else {
				last, _ := versionMap.Last()
				prevVersion = last.Version
			}
		}

		// Remove any existing update packs targeting the new version; they
		// would be stale if re-uploading an existing version number.
		s.removeUpdatePacks(addon, pathstem, func(p *wml.Node) bool {
			return p.Attr("to") == newVersion
		})

		updatePackFn := campaignd.UpdatePackFilename(prevVersion, newVersion)

		packInfo := addon.AddChild("update_pack")
		packInfo.SetAttr("from", prevVersion)
		packInfo.SetAttr("to", newVersion)
		packInfo.SetIntAttr("expire", uploadTS+int64(s.cfg.UpdatePackLifespan/time.Second))
		packInfo.SetAttr("filename", updatePackFn)

		req.logger.Info("saving provided update pack", "from", prevVersion, "to", newVersion)
		if err := s.writeUpdatePack(pathstem+"/"+updatePackFn, deltaRemove, deltaAdd); err != nil {
			req.logger.Error("writing update pack failed", "error", err)
			s.sendErrorStatus(req, "Server error: Could not save the update pack.", "", campaignd.StatusServerUnspecified)
			return
		}

		// Apply the delta to the previous full pack to produce the new one.

		prevRec, ok := versionMap.Find(campaignd.ParseVersion(prevVersion))
		if !ok {
			req.logger.Error("previous version dropped off the version map", "addon", name)
			s.sendErrorStatus(req, "Server error: Previous version disappeared.", "", campaignd.StatusServerUnspecified)
			return
		}

		prev, err := s.readGzDocument(pathstem + "/" + prevRec.Filename)
		if err != nil {
			req.logger.Error("reading previous full pack failed", "error", err)
			s.sendErrorStatus(req, "Server error: Could not read the previous full pack.", "", campaignd.StatusServerUnspecified)
			return
		}
		rwFullPack = prev

		if haveWML(deltaRemove) {
			pack.ApplyRemovelist(rwFullPack, deltaRemove)
		}
		if haveWML(deltaAdd) {
			pack.ApplyAddlist(rwFullPack, deltaAdd)
		}
	}

	// Detect translation catalogues and toggle their supported status.
	pack.FindTranslations(rwFullPack, addon)

	// Add default license information if needed.
	pack.AddLicense(rwFullPack)

	// Update the version map, first dropping any identical version.

	versionRec := campaignd.VersionRecord{
		Version:  newVersion,
		Filename: campaignd.FullPackFilename(newVersion),
	}
	addon.RemoveChildren("version", func(old *wml.Node) bool {
		return old.Attr("version") == newVersion
	})
	versionMap.InsertReplace(versionRec)
	versionCfg := addon.AddChild("version")
	versionCfg.SetAttr("version", versionRec.Version)
	versionCfg.SetAttr("filename", versionRec.Filename)

	// Write the full pack and its index file.

	fullPackPath := pathstem + "/" + versionRec.Filename
	indexPath := pathstem + "/" + campaignd.IndexFilename(newVersion)

	if err := pack.WriteFullPack(s.fs, fullPackPath, rwFullPack, s.store.CompressLevel()); err != nil {
		req.logger.Error("writing full pack failed", "error", err)
		s.sendErrorStatus(req, "Server error: Could not save the add-on pack.", "", campaignd.StatusServerUnspecified)
		return
	}
	if err := pack.WriteIndex(s.fs, indexPath, rwFullPack, s.store.CompressLevel()); err != nil {
		req.logger.Error("writing hash index failed", "error", err)
		s.sendErrorStatus(req, "Server error: Could not save the add-on pack index.", "", campaignd.StatusServerUnspecified)
		return
	}

	if size, err := s.fs.Size(fullPackPath); err == nil {
		addon.SetIntAttr("size", size)
	}

	// Expire old update packs and delete them.

	s.removeUpdatePacks(addon, pathstem, func(p *wml.Node) bool {
		expired := uploadTS > p.IntAttr("expire", 0)
		if expired || p.Attr("from") == newVersion || (!isDeltaUpload && p.Attr("to") == newVersion) {
			req.logger.Info("expiring update pack", "from", p.Attr("from"), "to", p.Attr("to"))
			return true
		}
		return false
	})

	// Create any missing update packs between consecutive versions, for
	// clients that could not upload those update packs themselves.

	s.backfillUpdatePacks(req, addon, versionMap, pathstem, uploadTS)

	s.store.MarkDirty(name)
	if err := s.store.WriteConfig(); err != nil {
		req.logger.Error("config write failed", "error", err)
	}

	req.logger.Info("finished uploading add-on", "addon", name)
	s.sendMessage(req, "Add-on accepted.")

	telemetry.RecordUpload(context.Background(), packKind)
	s.fireHook(s.cfg.HookPostUpload, name)
}

// removeUpdatePacks deletes every [update_pack] child matching pred along
// with its file.
func (s *Server) removeUpdatePacks(addon *wml.Node, pathstem string, pred func(*wml.Node) bool) {
	addon.RemoveChildren("update_pack", func(p *wml.Node) bool {
		if !pred(p) {
			return false
		}
		_ = s.fs.Remove(pathstem + "/" + p.Attr("filename"))
		return true
	})
}

// writeUpdatePack writes a pack document with [removelist] and [addlist]
// children; nil deltas become empty lists.
func (s *Server) writeUpdatePack(path string, removelist, addlist *wml.Node) error {
	doc := wml.New()
	if removelist != nil {
		doc.AppendChild("removelist", removelist.Clone())
	} else {
		doc.AddChild("removelist")
	}
	if addlist != nil {
		doc.AppendChild("addlist", addlist.Clone())
	} else {
		doc.AddChild("addlist")
	}

	w, err := s.fs.Writer(path)
	if err != nil {
		return err
	}
	if err := wml.WriteGzip(w, doc, s.store.CompressLevel()); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// backfillUpdatePacks synthesizes an update pack for every consecutive
// version pair that lacks one, by diffing the two full packs.
func (s *Server) backfillUpdatePacks(req request, addon *wml.Node, vm *campaignd.VersionMap, pathstem string, uploadTS int64) {
	for prev, next := range vm.Pairs() {
		if findUpdatePack(addon, prev.Version, next.Version) != nil {
			continue
		}

		req.logger.Info("automatically generating update pack",
			"from", prev.Version, "to", next.Version)

		from, err := s.readGzDocument(pathstem + "/" + prev.Filename)
		if err != nil {
			req.logger.Error("unable to generate update pack",
				"from", prev.Version, "to", next.Version, "error", err)
			continue
		}
		to, err := s.readGzDocument(pathstem + "/" + next.Filename)
		if err != nil {
			req.logger.Error("unable to generate update pack",
				"from", prev.Version, "to", next.Version, "error", err)
			continue
		}

		removelist, addlist := pack.MakeUpdatePack(from, to)

		updatePackFn := campaignd.UpdatePackFilename(prev.Version, next.Version)
		if err := s.writeUpdatePack(pathstem+"/"+updatePackFn, removelist, addlist); err != nil {
			req.logger.Error("writing generated update pack failed", "error", err)
			continue
		}

		packInfo := addon.AddChild("update_pack")
		packInfo.SetAttr("from", prev.Version)
		packInfo.SetAttr("to", next.Version)
		packInfo.SetIntAttr("expire", uploadTS+int64(s.cfg.UpdatePackLifespan/time.Second))
		packInfo.SetAttr("filename", updatePackFn)
	}
}
