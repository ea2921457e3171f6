/*
Package log provides structured logging for kvdoc using zerolog: a global
JSON or console logger, initialized once via Init, plus child loggers that
attach request-scoped context fields.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  Init(Config) builds the package-level Logger              │
	│    - JSONOutput true  → zerolog.New(...).With().Timestamp()│
	│    - JSONOutput false → zerolog.ConsoleWriter               │
	│                                                            │
	│  Context loggers layer fields onto Logger:                 │
	│    WithComponent("api"), WithCollection(u),                 │
	│    WithRequestID(id), WithBackupID(id)                      │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("kvdoc starting")

	reqLog := log.WithRequestID(requestID)
	reqLog.Info().Str("collection", u).Msg("range query")

	backupLog := log.WithBackupID(id)
	backupLog.Error().Err(err).Msg("backup failed")

Never log secret values or the hashed secret column — only collection names,
request ids, and backup/restore ids.
*/
package log
