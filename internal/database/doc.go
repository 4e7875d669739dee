// Package database provides the PostgreSQL connection pool for the top-of-book recorder.
//
// Samples are written to a single append-only table, book_samples. Prices and
// quantities are stored as BIGINT fixed-point values scaled by 10^4; timestamps
// are Unix microseconds.
package database
