package server

import (
	"context"
	"strings"
	"time"

	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/store"
	"github.com/hanko213/campaignd/telemetry"
	"github.com/hanko213/campaignd/wml"
)

// sendMessage replies with a [message] document.
func (s *Server) sendMessage(req request, msg string) {
	doc := wml.New()
	doc.AddChild("message").SetAttr("message", msg)
	if _, err := writeDocument(req.out, doc, s.store.CompressLevel()); err != nil {
		req.logger.Debug("failed to send message reply", "error", err)
	}
}

// sendError replies with an [error] document carrying only a message.
func (s *Server) sendError(req request, msg string) {
	req.logger.Error("request error", "message", msg)
	doc := wml.New()
	doc.AddChild("error").SetAttr("message", msg)
	if _, err := writeDocument(req.out, doc, s.store.CompressLevel()); err != nil {
		req.logger.Debug("failed to send error reply", "error", err)
	}
	telemetry.RecordError(context.Background(), "")
}

// sendErrorStatus replies with an [error] document carrying a status code
// and optional extra data (a newline-joined list of offending names).
func (s *Server) sendErrorStatus(req request, msg, extraData string, status campaignd.AddonCheckStatus) {
	req.logger.Error("request error", "status", status.String(), "message", msg)
	doc := wml.New()
	errCfg := doc.AddChild("error")
	errCfg.SetAttr("message", msg)
	errCfg.SetAttr("extra_data", extraData)
	errCfg.SetIntAttr("status_code", int64(status))
	if _, err := writeDocument(req.out, doc, s.store.CompressLevel()); err != nil {
		req.logger.Debug("failed to send error reply", "error", err)
	}
	telemetry.RecordError(context.Background(), status.String())
}

// sendDocument replies with an arbitrary document.
func (s *Server) sendDocument(req request, doc *wml.Node) int64 {
	n, err := writeDocument(req.out, doc, s.store.CompressLevel())
	if err != nil {
		req.logger.Debug("failed to send reply", "error", err)
	}
	return n
}

// handleCampaignList serves the add-ons list, with optional name, language
// and timestamp-window filters.
func (s *Server) handleCampaignList(req request) {
	req.logger.Info("sending add-ons list")

	now := time.Now().Unix()

	list := wml.New()
	list.SetIntAttr("timestamp", now)

	epoch := now
	if req.cfg.Attr("times_relative_to") != "now" {
		epoch = 0
	}

	var before, after int64
	beforeFlag := req.cfg.HasAttr("before")
	if beforeFlag {
		before = epoch + req.cfg.IntAttr("before", 0)
	}
	afterFlag := req.cfg.HasAttr("after")
	if afterFlag {
		after = epoch + req.cfg.IntAttr("after", 0)
	}

	nameFilter := req.cfg.Attr("name")
	langFilter := req.cfg.Attr("language")

	for id, addon := range s.store.All() {
		if nameFilter != "" && nameFilter != id {
			continue
		}
		if addon.BoolAttr("hidden", false) {
			continue
		}

		if beforeFlag && (!addon.HasAttr("timestamp") || addon.IntAttr("timestamp", 0) >= before) {
			continue
		}
		if afterFlag && (!addon.HasAttr("timestamp") || addon.IntAttr("timestamp", 0) <= after) {
			continue
		}

		if langFilter != "" {
			found := false
			for tr := range addon.Children("translation") {
				// Old add-ons predate the supported flag; count them in.
				if tr.Attr("language") == langFilter && tr.BoolAttr("supported", true) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}

		list.AppendChild("campaign", addon.Clone())
	}

	for c := range list.Children("campaign") {
		// Strip attributes that are sensitive or irrelevant to clients.
		c.RemoveAttrs("passphrase", "passhash", "passsalt", "upload_ip", "email")

		// Deliver a computed feedback_url, empty when unavailable, so
		// clients can rely on the attribute's presence.
		urlParams := c.First("feedback")
		if urlParams != nil && !urlParams.Empty() && s.cfg.FeedbackURLFormat != "" {
			c.SetAttr("feedback_url", formatFeedbackURL(s.cfg.FeedbackURLFormat, urlParams))
		} else {
			c.SetAttr("feedback_url", "")
		}
		c.ClearChildren("feedback")

		// Update pack bookkeeping is server-internal.
		c.ClearChildren("update_pack")
	}

	response := wml.New()
	response.AppendChild("campaigns", list)
	s.sendDocument(req, response)
}

// formatFeedbackURL substitutes $key placeholders in format with the
// attribute values of params.
func formatFeedbackURL(format string, params *wml.Node) string {
	out := format
	for key, value := range params.Attrs() {
		out = strings.ReplaceAll(out, "$"+key, value)
	}
	return out
}

// uploadTerms is the licensing statement shown to clients before upload.
const uploadTerms = `All content within add-ons uploaded to this server must be licensed under the terms of the GNU General Public License (GPL), with the sole exception of graphics and audio explicitly denoted as released under a Creative Commons license either in:

    a) a combined toplevel file, e.g. "My_Addon/ART_LICENSE"; or
    b) a file with the same path as the asset with ".license" appended, e.g. "My_Addon/images/units/axeman.png.license".

By uploading content to this server, you certify that you have the right to:

    a) release all included art and audio explicitly denoted with a Creative Commons license in the proscribed manner under that license; and
    b) release all other included content under the terms of the GPL; and that you choose to do so.`

func (s *Server) handleTerms(req request) {
	// A terms request usually precedes an upload attempt, so refuse early
	// in read-only mode.
	if s.cfg.ReadOnly {
		req.logger.Info("in read-only mode, request for upload terms denied")
		s.sendError(req, "The server is currently in read-only mode, add-on uploads are disabled.")
		return
	}

	req.logger.Info("sending license terms")
	s.sendMessage(req, uploadTerms)
}

func (s *Server) handleDelete(req request) {
	id := req.cfg.Attr("name")

	if s.cfg.ReadOnly {
		req.logger.Info("in read-only mode, delete denied", "addon", id)
		s.sendError(req, "Cannot delete add-on: The server is currently in read-only mode.")
		return
	}

	req.logger.Info("deleting add-on", "addon", id)

	addon := s.store.Get(id)
	if addon == nil {
		s.sendError(req, "The add-on does not exist.")
		return
	}

	pass := req.cfg.Attr("passphrase")
	if pass == "" {
		s.sendError(req, "No passphrase was specified.")
		return
	}
	if !store.Authenticate(addon, pass) {
		s.sendError(req, "The passphrase is incorrect.")
		return
	}
	if addon.BoolAttr("hidden", false) {
		req.logger.Info("add-on removal denied - hidden add-on", "addon", id)
		s.sendError(req, "Add-on deletion denied. Please contact the server administration for assistance.")
		return
	}

	if err := s.store.Delete(id); err != nil {
		req.logger.Error("delete failed", "addon", id, "error", err)
		s.sendError(req, "The server failed to delete the add-on.")
		return
	}

	s.fireHook(s.cfg.HookPostErase, id)
	s.sendMessage(req, "Add-on deleted.")
}

func (s *Server) handleChangePassphrase(req request) {
	if s.cfg.ReadOnly {
		req.logger.Info("in read-only mode, passphrase change denied")
		s.sendError(req, "Cannot change passphrase: The server is currently in read-only mode.")
		return
	}

	addon := s.store.Get(req.cfg.Attr("name"))

	switch {
	case addon == nil:
		s.sendError(req, "No add-on with that name exists.")
	case !store.Authenticate(addon, req.cfg.Attr("passphrase")):
		s.sendError(req, "Your old passphrase was incorrect.")
	case addon.BoolAttr("hidden", false):
		req.logger.Info("passphrase change denied - hidden add-on")
		s.sendError(req, "Add-on passphrase change denied. Please contact the server administration for assistance.")
	case req.cfg.Attr("new_passphrase") == "":
		s.sendError(req, "No new passphrase was supplied.")
	default:
		store.SetPassphrase(addon, req.cfg.Attr("new_passphrase"))
		s.store.MarkDirty(addon.Attr("name"))
		if err := s.store.WriteConfig(); err != nil {
			req.logger.Error("config write failed", "error", err)
		}
		s.sendMessage(req, "Passphrase changed.")
	}
}
