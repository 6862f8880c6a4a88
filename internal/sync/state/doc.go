// Package state contains the journal backends of the sync engine: sessions,
// data versions and conflicts held for manual resolution.
//
// Three backends exist. The memory journal lives for the process lifetime,
// the database journal shares the PostgreSQL schema of the record store and
// the SQLite journal keeps history in a single local file for deployments
// that keep records in memory.
package state
