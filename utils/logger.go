package utils

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// InitLogger configures the shared logger. format is "json" or "text".
func InitLogger(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return logger
}

// BusinessEvent returns an entry carrying the standard business-event fields.
func BusinessEvent(tenantID uint, entityType string, entityID uint, event string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"tenant":      tenantID,
		"entity_type": entityType,
		"entity_id":   entityID,
		"event":       event,
	})
}
