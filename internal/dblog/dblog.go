// Package dblog provides the database's internal diagnostic logging: lock
// contention, dropped notification-queue entries, rejected validators and
// commit failures. internal/database calls these helpers directly from its
// dispatch error paths; nothing here blocks on I/O or takes a lock the
// caller already holds.
//
// Grounded on cuemby-warren's pkg/log (github.com/rs/zerolog): the same
// Init/WithComponent shape, narrowed to what the database core actually
// emits rather than a general-purpose app logger.
package dblog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging verbosity, matching cuemby-warren's pkg/log.Level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is the package-level logger, safe to use with its zero value:
// zerolog.Logger{} has no writer and discards every event, so nothing is
// logged until Init runs, and a missed Init never panics.
var Logger zerolog.Logger

// Init (re)configures the package-level Logger. Safe to call more than
// once (e.g. after internal/config.Watch picks up a changed log level).
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagging every entry with component,
// e.g. dblog.WithComponent("notify") for internal/notify's drop counter.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// QueueDrop logs a notification dropped because its queue was full at Send
// time -- internal/notify.Queue.Send discards silently (it must not block a
// committing transaction), so a caller that cares about drops polls
// Queue.Dropped() and reports the delta through this helper.
func QueueDrop(component string, total int64) {
	WithComponent(component).Warn().Int64("total_dropped", total).Msg("notification queue dropped entries")
}

// ValidatorRejected logs a commit rejected by a resource or collection
// validator chain, keyed by the path the caller was dispatching against.
func ValidatorRejected(component, path string, err error) {
	WithComponent(component).Debug().Str("path", path).Err(err).Msg("validator rejected commit")
}

// LockContention logs a caller observed blocking on a resource/collection
// mutex for longer than expected -- internal/resource and internal/collection
// use a plain sync.Mutex with no built-in contention signal, so callers that
// want this wrap their own TransactionLock/WriteLock call with a timer and
// report it here.
func LockContention(component, path string, waited time.Duration) {
	WithComponent(component).Warn().Str("path", path).Dur("waited", waited).Msg("lock contention")
}
