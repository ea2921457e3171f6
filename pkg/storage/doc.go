/*
Package storage provides bbolt-backed, column-family-isolated document
storage for kvdoc. It is the facade every tenant-facing handler writes
through: typed get/insert/delete, atomic batch ingestion, bounded
forward/reverse range scans, JSONPath filtering, and per-CF backup/restore.

# Architecture

	┌──────────────────── BOLTENGINE ──────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │             BoltEngine                       │          │
	│  │  - File: <dataDir>/kvdoc.db                 │          │
	│  │  - One bucket per column family (CF)        │          │
	│  │  - Buckets created on demand, not upfront   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │     Transactions (db.View / db.Update)       │          │
	│  │  - Read: concurrent, consistent snapshot    │          │
	│  │  - Write: serialized, atomic commit         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Range / Query                      │          │
	│  │  - bolt.Cursor.Seek/Next/Prev for ranges     │          │
	│  │  - full-bucket scan + jsonpath.Expr for      │          │
	│  │    query_cf                                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Backup / Restore                      │          │
	│  │  - a backup file is itself a single-bucket   │          │
	│  │    bbolt database ("data" bucket)            │          │
	│  │  - CreateBackup copies the source bucket in  │          │
	│  │  - RestoreBackup replays it into a fresh CF  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

Every value is stored JSON-encoded; callers pass and receive Go values via
encoding/json, the same convention the teacher lineage's BoltDB-backed store
uses for its own resource buckets, generalized here to arbitrary
caller-named CFs instead of one bucket per built-in resource type.
*/
package storage
