// # tabcsv: A CSV Logging Sink for Drifting Schemas
//
// tabcsv writes a sequence of key/value records to a CSV file while the set
// of keys changes from one record to the next. The header follows the keys
// of the first non-empty record; later records are written against that
// header and any drift is reported once per distinct change.
//
// # Features
//
// - `Output` sink with three reconciliation modes (`ModeNone`, `ModeCopyOnClose`, `ModeFixedHeaderLength`).
// - `Tabular` record producer with key prefixes and consumed-field marking.
// - Buffered `RowWriter` and ragged-row `RowReader` with RFC 4180 quoting.
// - YAML configuration via `LoadConfig`, Prometheus collectors via `NewMetrics`.
// - Deduplicated, colorized warnings logged through `log/slog` at the caller's line.
//
// # Reconciliation Modes
//
// `ModeNone` keeps the first schema forever: missing keys are written empty
// and new keys are ignored (and left unmarked on the record).
//
// `ModeCopyOnClose` grows the schema as new keys appear and rewrites the file
// on Close so every row has one value per final field.
//
// `ModeFixedHeaderLength` reserves `Config.HeaderLength` bytes for the header
// and patches it in place when the schema grows. Rows written earlier keep
// their width, and fields past the budget are missing from the header. Readers
// must trim the trailing padding from the last header name.
//
// # Getting Started
//
//	out, err := tabcsv.Create("progress.csv", tabcsv.Config{Mode: tabcsv.ModeCopyOnClose})
//	if err != nil {
//		return err
//	}
//	defer out.Close()
//
//	tab := tabcsv.NewTabular()
//	tab.Record("epoch", 1)
//	tab.Record("loss", 0.25)
//	if err := out.Write(tab); err != nil {
//		return err
//	}
package tabcsv
