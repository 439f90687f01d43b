package utils

import (
	"github.com/jfrog/gofrog/log"
)

type LevelType = log.LevelType

const (
	ERROR = log.ERROR
	WARN  = log.WARN
	INFO  = log.INFO
	DEBUG = log.DEBUG
)

type Log interface {
	Debug(a ...interface{})
	Info(a ...interface{})
	Warn(a ...interface{})
	Error(a ...interface{})
	Output(a ...interface{})
}

// NewDefaultLogger returns a logger writing to stderr with the given level.
func NewDefaultLogger(logLevel LevelType) Log {
	return log.NewLogger(logLevel)
}

// SetDefaultLogLevel sets the level of gofrog's package-level logger, which otherwise
// reads it from JFROG_LOG_LEVEL.
func SetDefaultLogLevel(logLevel LevelType) {
	log.GetLogger().SetLogLevel(logLevel)
}

// NullLog is a logger that does nothing
type NullLog struct {
}

func (nl *NullLog) Debug(...interface{}) {
}

func (nl *NullLog) Info(...interface{}) {
}

func (nl *NullLog) Warn(...interface{}) {
}

func (nl *NullLog) Error(...interface{}) {
}

func (nl *NullLog) Output(...interface{}) {
}
