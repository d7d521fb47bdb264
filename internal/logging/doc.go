// Package logging configures the structured logger used across corpusrag:
// a JSON slog handler writing to a size-rotated log file (logs/corpusrag.log
// by default), optionally tee'd to stderr.
//
// Components never reach for slog's default logger; they receive a
// *slog.Logger from their caller, so an ingestion run can scope every
// record with its run_id.
package logging
