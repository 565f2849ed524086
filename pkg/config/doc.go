/*
Package config loads the single Config struct cmd/crater coordinator serve
builds its component wiring from: work directory, coordinator address, TLS
files, Raft tuning, sandbox socket, disk-watch and worker-pool knobs.
cmd/crater agent run does not call Load.

# Architecture

	┌──────────────────────── CONFIG ───────────────────────┐
	│                                                        │
	│  defaults (package consts) --> viper.SetDefault        │
	│  --config <path>, when given       --> viper           │
	│  CRATER_* environment variables  --> viper (overrides) │
	│                                                        │
	│  Load() --> Config{} (typed, validated)                │
	└────────────────────────────────────────────────────────┘

Grounded on the viper+cobra pairing the rest of this retrieval pack uses
for layered config (env overrides file overrides default; command-line
flags are not bound into viper, and no config file is read unless a path
is given);
the teacher itself only reads cobra flags directly, so this package is an
ecosystem-sourced enrichment rather than a direct teacher port (see
DESIGN.md).
*/
package config
