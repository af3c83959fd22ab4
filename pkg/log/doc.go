// Package log captures protocol events for debugging and replay.
//
// It is separate from operational logging (slog): a capture is a
// complete machine-readable trace of every frame sent and received,
// the decoded messages, and session state changes.
//
//	// console
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// file, viewable with dmq-log
//	fl, _ := log.NewFileLogger("session.dlog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(nil), fl)
//
// Capture files are a stream of CBOR-encoded Events with integer keys.
package log
