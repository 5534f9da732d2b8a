package server

import (
	"strings"
	"time"

	"github.com/hanko213/campaignd/wml"
)

const (
	// DefaultPort is the port add-on clients connect to.
	DefaultPort = 15008

	// defaultDocumentSizeLimit caps incoming documents. An add-on arrives
	// as a single document, so this bounds the maximum upload size.
	defaultDocumentSizeLimit = 100 * 1024 * 1024

	defaultUpdatePackLifespan = 30 * 24 * time.Hour
)

// Config is the typed view of server.cfg. The raw document stays owned by
// the store so migrations and admin changes persist through it.
type Config struct {
	Port               int
	ReadOnly           bool
	CompressLevel      int
	UpdatePackLifespan time.Duration
	BlacklistFile      string
	StatsExemptIPs     []string
	HookPostUpload     string
	HookPostErase      string
	ControlSocket      string
	DocumentSizeLimit  int64
	FeedbackURLFormat  string
	MetricsAddress     string
}

func configFromDoc(doc *wml.Node) Config {
	cfg := Config{
		Port:               int(doc.IntAttr("port", DefaultPort)),
		ReadOnly:           doc.BoolAttr("read_only", false),
		CompressLevel:      int(doc.IntAttr("compress_level", wml.DefaultCompressLevel)),
		UpdatePackLifespan: time.Duration(doc.IntAttr("update_pack_lifespan", int64(defaultUpdatePackLifespan/time.Second))) * time.Second,
		BlacklistFile:      doc.Attr("blacklist_file"),
		StatsExemptIPs:     strings.Fields(doc.Attr("stats_exempt_ips")),
		HookPostUpload:     doc.Attr("hook_post_upload"),
		HookPostErase:      doc.Attr("hook_post_erase"),
		ControlSocket:      doc.Attr("control_socket"),
		DocumentSizeLimit:  doc.IntAttr("document_size_limit", defaultDocumentSizeLimit),
		FeedbackURLFormat:  doc.Attr("feedback_url_format"),
		MetricsAddress:     doc.Attr("metrics_address"),
	}

	// The feedback URL format historically lived in a [server_info] block.
	if cfg.FeedbackURLFormat == "" {
		if info := doc.First("server_info"); info != nil {
			cfg.FeedbackURLFormat = info.Attr("feedback_url_format")
		}
	}

	return cfg
}
