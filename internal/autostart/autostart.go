// Package autostart registers the reminder server with the OS login
// session so the schedule survives reboots without the user relaunching
// anything.
package autostart

import (
	"log"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
)

// Sync brings the login-item registration in line with the configured
// preference. It is idempotent; calling it on every boot is fine.
func Sync(enable bool, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return err
	}

	app := &autostart.App{
		Name:        "daily",
		DisplayName: "Daily Routine Reminders",
		Exec:        []string{execPath},
	}

	if enable {
		if app.IsEnabled() {
			return nil
		}
		if err := app.Enable(); err != nil {
			return err
		}
		logger.Printf("autostart: enabled")
		return nil
	}

	if !app.IsEnabled() {
		return nil
	}
	if err := app.Disable(); err != nil {
		return err
	}
	logger.Printf("autostart: disabled")
	return nil
}
