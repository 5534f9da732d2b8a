// Package store owns the in-memory add-on index, its persistence to the
// server directory, and authorship authentication.
package store

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"

	campaignd "github.com/hanko213/campaignd"
	"github.com/hanko213/campaignd/pack"
	"github.com/hanko213/campaignd/storage"
	"github.com/hanko213/campaignd/wml"
)

// ErrUnknownAddon is returned for operations on an id not in the store.
var ErrUnknownAddon = errors.New("unknown add-on")

// Store is the add-on index: id → metadata document, plus the raw server
// config document and the set of add-ons whose metadata has not yet been
// flushed to disk. It is not safe for concurrent use; the server serializes
// handler execution.
type Store struct {
	fs      *storage.Dir
	cfgPath string
	logger  *slog.Logger

	cfg           *wml.Node
	compressLevel int

	addons map[string]*wml.Node
	dirty  map[string]struct{}
}

// New creates a store over the given server directory. Load must be called
// before anything else.
func New(fs *storage.Dir, cfgPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fs:      fs,
		cfgPath: cfgPath,
		logger:  logger,
		addons:  map[string]*wml.Node{},
		dirty:   map[string]struct{}{},
	}
}

// Load reads the server config and every add-on's metadata from disk,
// running the legacy-format and passphrase migrations. Any failure is
// fatal: a server directory that cannot be fully loaded must not serve.
func (s *Store) Load() error {
	s.logger.Info("reading configuration", "path", s.cfgPath)

	cfg, err := s.readDocument(s.cfgPath)
	if err != nil {
		return fmt.Errorf("reading server config %s: %w", s.cfgPath, err)
	}
	s.cfg = cfg
	s.compressLevel = int(cfg.IntAttr("compress_level", wml.DefaultCompressLevel))

	// Pin the effective compression level in the config so a given server
	// instance keeps its parameters if the code default changes.
	s.cfg.SetIntAttr("compress_level", int64(s.compressLevel))

	s.addons = map[string]*wml.Node{}
	s.dirty = map[string]struct{}{}

	dirs, err := s.fs.Subdirs("data")
	if err != nil {
		return fmt.Errorf("enumerating add-on directories: %w", err)
	}
	for _, dir := range dirs {
		meta, err := s.readDocument("data/" + dir + "/addon.cfg")
		if err != nil {
			return fmt.Errorf("failed to load add-on from dir %q: %w", dir, err)
		}
		if meta.Empty() {
			return fmt.Errorf("failed to load add-on from dir %q: empty metadata", dir)
		}
		s.addons[meta.Attr("name")] = meta
	}

	if err := s.migrateLegacyAddons(); err != nil {
		return err
	}

	if !s.cfg.BoolAttr("read_only", false) {
		s.migratePassphrases()
	}

	if err := s.WriteConfig(); err != nil {
		return err
	}

	s.logger.Info("loaded add-ons metadata", "count", len(s.addons))
	return nil
}

// migrateLegacyAddons converts entries of a legacy [campaigns] block, where
// each add-on was one gzipped content file, into the per-directory layout.
// All new files are written before the legacy file is removed, so a crash
// mid-migration leaves the original content recoverable.
func (s *Store) migrateLegacyAddons() error {
	campaigns := s.cfg.First("campaigns")
	if campaigns == nil {
		return nil
	}

	count := campaigns.ChildCount("campaign")
	s.logger.Warn("legacy add-ons detected in the config, converting to the directory format",
		"count", count)

	for c := range campaigns.Children("campaign") {
		id := c.Attr("name")
		legacyFile := c.Attr("filename")
		version := c.Attr("version")

		if _, ok := s.addons[id]; ok {
			return fmt.Errorf("legacy add-on %q already exists in the new format", id)
		}
		if !s.fs.IsFile(legacyFile) {
			return fmt.Errorf("no file found for legacy add-on %q at %s", id, legacyFile)
		}

		data, err := s.readGzDocument(legacyFile)
		if err != nil {
			return fmt.Errorf("reading content file for legacy add-on %q: %w", id, err)
		}
		if data.Empty() {
			return fmt.Errorf("content file for legacy add-on %q is empty", id)
		}

		// The legacy file sits exactly where the add-on directory goes, so
		// move it aside first; it is deleted only once the new layout is
		// complete.
		aside := legacyFile + ".legacy"
		if err := s.fs.Rename(legacyFile, aside); err != nil {
			return fmt.Errorf("moving aside legacy add-on %q: %w", id, err)
		}

		addon := c.Clone()
		versionCfg := addon.AddChild("version")
		versionCfg.SetAttr("version", version)
		versionCfg.SetAttr("filename", campaignd.FullPackFilename(version))

		// The content tree carried metadata attributes in the legacy
		// format; those live in addon.cfg now.
		data.RemoveAttrs("title", "campaign_name", "author", "description", "version",
			"timestamp", "original_timestamp", "icon", "type", "tags")

		pathstem := legacyFile
		if err := pack.WriteFullPack(s.fs, pathstem+"/"+versionCfg.Attr("filename"), data, s.compressLevel); err != nil {
			return fmt.Errorf("writing full pack for legacy add-on %q: %w", id, err)
		}
		if err := pack.WriteIndex(s.fs, pathstem+"/"+campaignd.IndexFilename(version), data, s.compressLevel); err != nil {
			return fmt.Errorf("writing hash index for legacy add-on %q: %w", id, err)
		}

		if err := s.fs.Remove(aside); err != nil {
			return fmt.Errorf("removing legacy file for add-on %q: %w", id, err)
		}

		s.addons[id] = addon
		s.MarkDirty(id)
	}

	s.cfg.ClearChildren("campaigns")
	s.logger.Info("legacy add-ons processing finished")
	return s.WriteConfig()
}

// migratePassphrases hashes any remaining cleartext passphrase attributes.
func (s *Store) migratePassphrases() {
	for id, addon := range s.addons {
		if addon.Attr("passphrase") == "" {
			continue
		}
		s.logger.Info("add-on uses unhashed passphrase, fixing", "addon", addon.Attr("title"))
		SetPassphrase(addon, addon.Attr("passphrase"))
		addon.SetAttr("passphrase", "")
		s.MarkDirty(id)
	}
}

// Config returns the raw server config document.
func (s *Store) Config() *wml.Node {
	return s.cfg
}

// CompressLevel returns the gzip level all pack writes use.
func (s *Store) CompressLevel() int {
	return s.compressLevel
}

// Dir returns the underlying server directory.
func (s *Store) Dir() *storage.Dir {
	return s.fs
}

// Len returns the number of add-ons in the store.
func (s *Store) Len() int {
	return len(s.addons)
}

// Get returns the metadata for an exact id, or nil if unknown.
func (s *Store) Get(id string) *wml.Node {
	return s.addons[id]
}

// Ids returns every stored id, sorted.
func (s *Store) Ids() []string {
	ids := make([]string, 0, len(s.addons))
	for id := range s.addons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All iterates over the add-ons in id order.
func (s *Store) All() iter.Seq2[string, *wml.Node] {
	return func(yield func(string, *wml.Node) bool) {
		for _, id := range s.Ids() {
			if !yield(id, s.addons[id]) {
				return
			}
		}
	}
}

// Insert adds or replaces the metadata for id.
func (s *Store) Insert(id string, addon *wml.Node) {
	s.addons[id] = addon
}

// MarkDirty schedules the add-on's metadata for the next WriteConfig.
func (s *Store) MarkDirty(id string) {
	s.dirty[id] = struct{}{}
}

// WriteConfig flushes the server config and every dirty add-on's metadata
// to disk atomically, then clears the dirty set.
func (s *Store) WriteConfig() error {
	s.logger.Debug("writing configuration and add-ons list to disk")

	if err := s.writeDocument(s.cfgPath, s.cfg); err != nil {
		return fmt.Errorf("writing server config: %w", err)
	}

	for id := range s.dirty {
		addon := s.addons[id]
		if addon == nil || addon.Attr("filename") == "" {
			continue
		}
		if err := s.writeDocument(addon.Attr("filename")+"/addon.cfg", addon); err != nil {
			return fmt.Errorf("writing metadata for add-on %q: %w", id, err)
		}
	}

	s.dirty = map[string]struct{}{}
	return nil
}

// Delete removes the add-on's directory tree and store entry, then
// persists the config. The caller fires any post-erase hook.
func (s *Store) Delete(id string) error {
	addon := s.addons[id]
	if addon == nil {
		return ErrUnknownAddon
	}

	fn := addon.Attr("filename")
	if fn == "" {
		return fmt.Errorf("add-on %q has no associated filename", id)
	}
	if err := s.fs.RemoveTree(fn); err != nil {
		return fmt.Errorf("deleting directory for add-on %q: %w", id, err)
	}

	delete(s.addons, id)
	delete(s.dirty, id)
	if err := s.WriteConfig(); err != nil {
		return err
	}

	s.logger.Info("deleted add-on", "addon", id)
	return nil
}

// VersionMapOf builds the ordered version history from the add-on's
// [version] children.
func VersionMapOf(addon *wml.Node) *campaignd.VersionMap {
	vm := &campaignd.VersionMap{}
	for v := range addon.Children("version") {
		vm.InsertReplace(campaignd.VersionRecord{
			Version:  v.Attr("version"),
			Filename: v.Attr("filename"),
		})
	}
	return vm
}

func (s *Store) readDocument(path string) (*wml.Node, error) {
	r, err := s.fs.Reader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return wml.Parse(data)
}

func (s *Store) readGzDocument(path string) (*wml.Node, error) {
	r, err := s.fs.Reader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return wml.ReadGzip(r)
}

func (s *Store) writeDocument(path string, doc *wml.Node) error {
	w, err := s.fs.Writer(path)
	if err != nil {
		return err
	}
	if err := wml.Write(w, doc); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}
