// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/gelf"
)

// Setup applies level and format to the standard logrus logger and, when
// gelfAddr is set, ships every entry to that GELF UDP endpoint too.
func Setup(level, format, gelfAddr string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)

	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if gelfAddr != "" {
		hook, err := gelf.New(gelfAddr, "kapa")
		if err != nil {
			return fmt.Errorf("gelf: %w", err)
		}
		logrus.AddHook(hook)
		logrus.WithField("addr", gelfAddr).Info("GELF logging enabled")
	}
	return nil
}
