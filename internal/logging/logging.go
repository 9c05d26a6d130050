// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init sets up logrus according to LOG_LEVEL and LOG_FORMAT, defaulting to
// info level with a text formatter when either is unset or unrecognized.
func Init(level, format string) {
	log.SetOutput(os.Stderr)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
