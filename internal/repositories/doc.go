// Package repositories implements SQLite persistence for pulsemix.
//
// Key Implementations:
//   - [TokenRepository] : provider OAuth credentials, one row per user; satisfies auth.TokenStore
//   - [HistoryRepository] : an append-only log of classifications produced by syncs
//
// Both are optional. The default storage driver keeps everything in process memory, and only
// the "sqlite" driver wires these repositories in.
package repositories
