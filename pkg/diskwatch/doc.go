/*
Package diskwatch implements C5, the disk-space watcher: a ticker that
samples free space on the scratch filesystem and a rendezvous the worker
pool coordinates through to purge caches without corrupting an in-flight
task.

# Architecture

	┌──────────────────── DISK WATCHER ─────────────────────┐
	│                                                        │
	│  Run(ctx): every Interval, disk.Usage(Path)            │
	│            free <= Threshold -> shouldPurge = true     │
	│                                                        │
	│  worker-0 ─┐                                          │
	│  worker-1 ─┼─> between tasks: ShouldPurge()? -> Pause()│
	│  worker-N ─┘        all Peers paused -> one runs Purge │
	│                     then all released, flag cleared    │
	└────────────────────────────────────────────────────────┘

Grounded on the teacher's pkg/reconciler/reconciler.go ticker-loop shape
(Start/Stop/run goroutine gated on a stop channel), redesigned from
heartbeat-timeout polling to free-space polling; the pause rendezvous is
new, needed because a purge must never run underneath a worker mid-task.
*/
package diskwatch
