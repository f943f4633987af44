// Package logging builds the process slog.Logger.
//
// The "json" format writes slog JSON records. Any other format writes
// colorized single-line records:
//
//	15:04:05 INF exchange completed exchange=3f2a… events=7
//
// Attributes added with WithGroup are printed with dotted keys.
package logging
