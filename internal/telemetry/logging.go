// Package telemetry wires the logrus logging config and prometheus metric
// registry shared across engine, save, and realtime components. Grounded
// on go/flowctl/logging.go's LogConfig (--level/--format flags, parsed
// once at process startup).
package telemetry

import (
	log "github.com/sirupsen/logrus"
)

// LogConfig configures process-wide log level and formatting.
type LogConfig struct {
	Level  string `long:"level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"LOG_FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog applies cfg to the logrus standard logger.
func InitLog(cfg LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
		return
	}
	log.SetLevel(lvl)
}
