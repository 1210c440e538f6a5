package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJson = "json"
)

// Config controls the process-wide logrus logger.
type Config struct {
	// Log level, e.g. info, debug.
	Level string
	// Either text or json.
	Format string
}

// ConfigureLogging sets a sensible default for command line tools: coloured text with full timestamps on stdout.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// ConfigureApplicationLogging applies config to the standard logger.
func ConfigureApplicationLogging(config Config) error {
	return configure(log.StandardLogger(), os.Stdout, config)
}

func configure(logger *log.Logger, out io.Writer, config Config) error {
	level := log.InfoLevel
	if config.Level != "" {
		l, err := log.ParseLevel(config.Level)
		if err != nil {
			return errors.WithStack(err)
		}
		level = l
	}
	switch strings.ToLower(config.Format) {
	case "", FormatText:
		logger.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	case FormatJson:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q; valid formats are %s and %s", config.Format, FormatText, FormatJson)
	}
	logger.SetLevel(level)
	logger.SetOutput(out)
	return nil
}
