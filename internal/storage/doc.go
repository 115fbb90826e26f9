package storage

// Package storage keeps the run history: one record per watch run with its
// outcome and change counts, served back to the ops status endpoint.
//
// Backends:
//   - "file": append-only JSON Lines journal with an in-memory recent window
//   - "sqlite": SQLite database file
//   - "none" (or empty): disabled
