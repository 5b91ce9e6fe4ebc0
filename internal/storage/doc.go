// Package storage provides SQLite persistence for notices and their lookups.
//
// The schema is embedded and applied on Open. Timestamps are stored as unix
// seconds and read back in UTC. The default database location is
// ~/.local/share/bid-scout/bid-scout.db.
package storage
