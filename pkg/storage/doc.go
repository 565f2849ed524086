/*
Package storage provides bbolt-backed key/value persistence shared by
pkg/results (C2) and pkg/registry (C6).

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/crater.db                │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │       Buckets created on first Put          │          │
	│  │  "results"   - C2 per-key outcome+log       │          │
	│  │  "experiments" - C6 registry FSM state      │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

C6's Raft log and stable store are kept by raft-boltdb in files of their
own (raft-log.db, raft-stable.db), not as buckets in this database.

Unlike the teacher's storage layer, this package exposes a single narrow
Store interface (Put/Get/ForEach/Delete over raw bytes) rather than one
method pair per domain entity -- callers own their own JSON encoding, which
keeps this package a pure persistence primitive.
*/
package storage
