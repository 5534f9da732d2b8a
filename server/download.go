package server

import (
	"context"
	"time"

	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/store"
	"github.com/hanko213/campaignd/telemetry"
	"github.com/hanko213/campaignd/wml"
)

// handleCampaign serves an add-on download: a concatenation of update packs
// when the client's previous version allows it, a full pack otherwise.
func (s *Server) handleCampaign(req request) {
	name := req.cfg.Attr("name")
	addon := s.store.Get(name)

	if addon == nil || addon.BoolAttr("hidden", false) {
		s.sendError(req, "Add-on '"+name+"' not found.")
		return
	}

	vm := store.VersionMapOf(addon)
	if vm.Len() == 0 {
		s.sendError(req, "No versions of the add-on '"+name+"' are available on the server.")
		return
	}

	from := req.cfg.Attr("from_version")
	to := req.cfg.Attr("version")
	if to == "" {
		last, _ := vm.Last()
		to = last.Version
	}

	// The target must exist exactly; unlike the hash index request there is
	// no nearest-older fallback here.
	toRec, ok := vm.Find(campaignd.ParseVersion(to))
	if !ok {
		s.sendError(req, "Could not find requested version "+to+" of the addon '"+name+"'.")
		return
	}

	pathstem := addon.Attr("filename")
	fullPackPath := pathstem + "/" + toRec.Filename
	fullPackSize, sizeErr := s.fs.Size(fullPackPath)

	sentDelta := false

	if from != "" {
		if _, known := vm.Find(campaignd.ParseVersion(from)); known {
			sentDelta = s.sendDeltaSequence(req, addon, vm, from, to, fullPackSize)
		}
	}

	if !sentDelta {
		if sizeErr != nil {
			s.sendError(req, "Add-on '"+name+"' could not be read by the server.")
			return
		}
		req.logger.Info("sending add-on full pack",
			"addon", name, "version", to, "size_kib", fullPackSize/1024)
		n, err := writeFile(req.out, s.fs, fullPackPath)
		if err != nil {
			req.logger.Warn("full pack send failed", "error", err)
		} else {
			telemetry.RecordDownload(context.Background(), "full", n)
		}
	}

	// Clients doing upgrades or other specific work don't bump the
	// downloads count; absent attributes default to counting for
	// compatibility with old clients.
	if from == "" && req.cfg.BoolAttr("increase_downloads", true) && !s.ignoreAddressStats(req.addr) {
		addon.SetIntAttr("downloads", 1+addon.IntAttr("downloads", 0))
		s.store.MarkDirty(name)
	}
}

// sendDeltaSequence walks the update pack chain from 'from' to 'to' and
// sends the concatenated delta. It reports whether a delta was sent; any
// anomaly (gap in the chain, empty pack, cumulative size past the full
// pack) makes it give up so the caller falls back to the full pack.
func (s *Server) sendDeltaSequence(req request, addon *wml.Node, vm *campaignd.VersionMap, from, to string, fullPackSize int64) bool {
	name := addon.Attr("name")
	pathstem := addon.Attr("filename")

	records := vm.Range(campaignd.ParseVersion(from), campaignd.ParseVersion(to))
	if len(records) < 2 {
		req.logger.Error("bad update sequence bounds, sending a full pack instead",
			"addon", name, "from", from, "to", to)
		return false
	}

	delta := wml.New()
	var deliverySize int64

	for i := 0; i+1 < len(records); i++ {
		prev, next := records[i], records[i+1]

		packInfo := findUpdatePack(addon, prev.Version, next.Version)
		if packInfo == nil {
			req.logger.Warn("update pack chain has a gap, sending a full pack instead",
				"addon", name, "from", prev.Version, "to", next.Version)
			return false
		}

		packPath := pathstem + "/" + packInfo.Attr("filename")
		step, err := s.readGzDocument(packPath)
		if err != nil || step.Empty() {
			req.logger.Warn("broken update sequence, sending a full pack instead",
				"addon", name, "from", from, "to", to, "error", err)
			return false
		}

		delta.Append(step)
		if size, err := s.fs.Size(packPath); err == nil {
			deliverySize += size
		}

		// No point in sending an overlarge delta update.
		if fullPackSize > 0 && deliverySize > fullPackSize {
			req.logger.Info("delta exceeds full pack size, sending a full pack instead",
				"addon", name, "from", from, "to", to)
			return false
		}
	}

	if delta.Empty() {
		return false
	}

	req.logger.Info("sending add-on delta",
		"addon", name, "from", from, "to", to, "size", deliverySize)
	n := s.sendDocument(req, delta)
	telemetry.RecordDownload(context.Background(), "delta", n)
	return true
}

// findUpdatePack returns the [update_pack] child carrying from to to, or
// nil. Expired packs are never served.
func findUpdatePack(addon *wml.Node, from, to string) *wml.Node {
	now := time.Now().Unix()
	for p := range addon.Children("update_pack") {
		if p.Attr("from") == from && p.Attr("to") == to && p.IntAttr("expire", 0) >= now {
			return p
		}
	}
	return nil
}

// handleCampaignHash streams the content hash index for a version. Unlike
// the download request, the version resolves fuzzily: exact match, else
// nearest older, else the latest when no version was requested.
func (s *Server) handleCampaignHash(req request) {
	name := req.cfg.Attr("name")
	addon := s.store.Get(name)

	if addon == nil || addon.BoolAttr("hidden", false) {
		s.sendError(req, "Add-on '"+name+"' not found.")
		return
	}

	vm := store.VersionMapOf(addon)
	if vm.Len() == 0 {
		s.sendError(req, "No versions of the add-on '"+name+"' are available on the server.")
		return
	}

	versionStr := req.cfg.Attr("version")
	var rec campaignd.VersionRecord
	if versionStr == "" {
		rec, _ = vm.Last()
	} else {
		parsed := campaignd.ParseVersion(versionStr)
		var ok bool
		if rec, ok = vm.Find(parsed); !ok {
			if rec, ok = vm.NearestOlder(parsed); !ok {
				s.sendError(req, "Missing index file for the add-on '"+name+"'.")
				return
			}
		}
	}

	path := addon.Attr("filename") + "/" + campaignd.IndexFromFullPackFilename(rec.Filename)
	size, err := s.fs.Size(path)
	if err != nil {
		s.sendError(req, "Missing index file for the add-on '"+name+"'.")
		return
	}

	req.logger.Info("sending add-on hash index", "addon", name, "size_kib", size/1024)
	if _, err := writeFile(req.out, s.fs, path); err != nil {
		req.logger.Warn("hash index send failed", "error", err)
	}
}

func (s *Server) readGzDocument(path string) (*wml.Node, error) {
	r, err := s.fs.Reader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return wml.ReadGzip(r)
}
