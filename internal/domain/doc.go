// Package domain models gauge time series and their DeepAR training records.
//
// # Data Source
//
// Readings come from hydrology agency exports: one zip archive per station,
// each holding CSV files for a single sensor (stream flow, rainfall, ...).
// Every CSV starts with a few lines of station metadata, then a header row,
// then one reading per line, and ends with summary lines that are not data.
//
//	"Date and time","Mean","Quality"
//	"01/01/2010 00:00:00","0.125","10"
//
// Columns are renamed with a per-sensor prefix when read ("Mean" becomes
// "flow_Mean"), so series from several sensors can be joined on timestamp
// without collisions. See [JoinSeries].
//
// # Segments
//
// Gauges go offline and quality filtering removes rows, so a station series
// has holes. [Segment] splits a series wherever consecutive timestamps are
// further apart than a threshold and keeps only runs that are long enough and
// contain a real rain event (peak of the secondary column at or above a
// minimum).
//
// # Records
//
// [Encode] projects one segment onto the JSON shape the forecasting service
// trains on:
//
//	{"start": "2010-01-01 00:00:00", "target": [...], "dynamic_feat": [[...]], "cat": "station"}
//
// The target may hold back a trailing horizon for train/test splits; dynamic
// features always span the full segment because the model needs them for the
// forecast horizon too.
//
// # Errors
//
// All failures wrap one of the sentinel errors in errors.go so callers can
// branch with errors.Is.
package domain
