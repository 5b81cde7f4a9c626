// Package storage provides on-disk persistence for pokertour.
//
// Two cache persisters back the in-memory cache store across restarts:
// FileStore keeps every entry in a single JSON document, SQLiteStore keeps one row
// per entry. Storage also keeps listing snapshots (snapshot.json and
// snapshot_<NAME>.json) that the new command diffs against.
// The default storage location is ~/.local/share/pokertour/.
package storage
