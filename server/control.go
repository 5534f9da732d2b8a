package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/hanko213/campaignd/store"
)

// startControlSocket opens the admin control socket if configured. It is a
// Unix domain socket accepting newline-delimited text commands; each
// command gets a single reply line.
func (s *Server) startControlSocket() error {
	if s.cfg.ControlSocket == "" {
		return nil
	}

	path := s.cfg.ControlSocket
	// A stale socket from a previous run blocks the bind.
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("opening control socket %s: %w", path, err)
	}
	s.controlLn = ln
	s.logger.Info("opened control socket, server commands may be written to it", "path", path)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveControl(conn)
		}
	}()
	return nil
}

func (s *Server) serveControl(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := s.runControlCommand(line)
		fmt.Fprintln(conn, reply)
	}
}

// runControlCommand executes one admin command under the handler lock and
// returns the reply line.
func (s *Server) runControlCommand(line string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	logger := s.logger.With("component", "control", "cmd", cmd)

	switch cmd {
	case "shut_down":
		logger.Info("shut down requested by admin, shutting down")
		s.Stop()
		return "shutting down"

	case "readonly":
		if len(args) > 0 {
			s.cfg.ReadOnly = parseBoolArg(args[0])
			s.store.Config().SetBoolAttr("read_only", s.cfg.ReadOnly)
		}
		state := "disabled"
		if s.cfg.ReadOnly {
			state = "enabled"
		}
		logger.Info("read only mode", "state", state)
		return "read only mode: " + state

	case "flush":
		logger.Info("flushing config to disk")
		if err := s.store.WriteConfig(); err != nil {
			logger.Error("flush failed", "error", err)
			return "error: " + err.Error()
		}
		return "flushed"

	case "reload":
		if len(args) > 0 {
			if args[0] != "blacklist" {
				logger.Error("unrecognized reload argument", "arg", args[0])
				return "error: unrecognized reload argument: " + args[0]
			}
			logger.Info("reloading blacklist")
			s.loadBlacklist()
			return "reloaded blacklist"
		}
		logger.Info("reloading all configuration")
		if err := s.reloadConfig(); err != nil {
			logger.Error("reload failed", "error", err)
			return "error: " + err.Error()
		}
		return "reloaded configuration"

	case "delete":
		if len(args) != 1 {
			return "error: incorrect number of arguments for 'delete'"
		}
		id := args[0]
		logger.Info("deleting add-on requested from control socket", "addon", id)
		if err := s.store.Delete(id); err != nil {
			logger.Error("delete failed", "addon", id, "error", err)
			return "error: " + err.Error()
		}
		s.fireHook(s.cfg.HookPostErase, id)
		return "deleted " + id

	case "hide", "unhide":
		if len(args) != 1 {
			return "error: incorrect number of arguments for '" + cmd + "'"
		}
		id := args[0]
		addon := s.store.Get(id)
		if addon == nil {
			logger.Error("add-on not found", "addon", id)
			return "error: add-on not found: " + id
		}
		addon.SetBoolAttr("hidden", cmd == "hide")
		s.store.MarkDirty(id)
		if err := s.store.WriteConfig(); err != nil {
			return "error: " + err.Error()
		}
		state := "unhidden"
		if cmd == "hide" {
			state = "hidden"
		}
		logger.Info("visibility changed", "addon", id, "state", state)
		return id + " is now " + state

	case "setpass":
		if len(args) != 2 {
			return "error: incorrect number of arguments for 'setpass'"
		}
		id, newPass := args[0], args[1]
		addon := s.store.Get(id)
		switch {
		case addon == nil:
			logger.Error("add-on not found, cannot set passphrase", "addon", id)
			return "error: add-on not found: " + id
		case newPass == "":
			return "error: add-on passphrases may not be empty"
		}
		store.SetPassphrase(addon, newPass)
		s.store.MarkDirty(id)
		if err := s.store.WriteConfig(); err != nil {
			return "error: " + err.Error()
		}
		logger.Info("new passphrase set", "addon", id)
		return "passphrase set for " + id

	case "setattr":
		// The value may contain spaces; split off exactly three fields.
		parts := strings.SplitN(line, " ", 4)
		if len(parts) != 4 {
			return "error: incorrect number of arguments for 'setattr'"
		}
		id, key, value := parts[1], parts[2], parts[3]
		return s.setAttr(logger, id, key, value)

	default:
		logger.Error("unrecognized admin command", "line", line)
		return "error: unrecognized command: " + cmd
	}
}

func (s *Server) setAttr(logger *slog.Logger, id, key, value string) string {
	addon := s.store.Get(id)
	switch {
	case addon == nil:
		logger.Error("add-on not found, cannot set attribute", "addon", id)
		return "error: add-on not found: " + id
	case key == "name" || key == "version":
		return "error: setattr cannot be used to rename add-ons or change their version"
	case key == "passphrase" || key == "passhash" || key == "passsalt":
		return "error: setattr cannot be used to set auth data -- use setpass instead"
	case !addon.HasAttr(key):
		// Uploads declare every recognized attribute (empty when absent),
		// so an undeclared key is not a recognized add-on attribute.
		return "error: attribute '" + key + "' is not a recognized add-on attribute"
	}

	addon.SetAttr(key, value)
	s.store.MarkDirty(id)
	if err := s.store.WriteConfig(); err != nil {
		return "error: " + err.Error()
	}
	return "set " + key + " on " + id
}

func parseBoolArg(arg string) bool {
	switch arg {
	case "no", "false", "0", "off":
		return false
	}
	return true
}
