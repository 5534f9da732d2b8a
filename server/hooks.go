package server

import (
	"os/exec"
)

// fireHook runs the configured hook script with the add-on id as its sole
// argument, detached from the request. Hook failures are logged, never
// surfaced to clients.
func (s *Server) fireHook(script, addonID string) {
	if script == "" {
		return
	}

	cmd := exec.Command(script, addonID)
	if err := cmd.Start(); err != nil {
		s.logger.Error("hook execution failed", "script", script, "addon", addonID, "error", err)
		return
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Error("hook exited with error", "script", script, "addon", addonID, "error", err)
		}
	}()
}
