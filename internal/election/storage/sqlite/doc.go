// Package sqlite implements the election storage contracts over a single
// SQLite database file.
package sqlite
