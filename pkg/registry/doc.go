/*
Package registry implements C6, the experiment registry: the durable,
single-writer record of which experiments are Queued, Running(agent), or
Completed.

# Architecture

	┌───────────────────── REGISTRY ─────────────────────┐
	│                                                     │
	│   Create/Next/Complete/SetReportStatus/Save/Touch    │
	│             │                                       │
	│             v                                       │
	│        raft.Raft.Apply(cmd)  <- single log,         │
	│             │                   single writer        │
	│             v                                       │
	│        craterFSM.Apply   -> bbolt-backed Store       │
	└─────────────────────────────────────────────────────┘

Every write funnels through Raft's Apply, which is itself serialized by
the Raft library. The FSM's RWMutex is the single in-process lock over
the stored state: the FSM holds it while applying a command, and reads
such as Get and RunByAgent take it directly rather than going through
Raft. Grounded on the teacher's pkg/manager/manager.go
(Bootstrap/Join/Apply lifecycle, timeout tuning) and fsm.go
(Command{Op,Data} dispatch, Snapshot/Restore), generalized from
node/service/container commands to experiment commands.
*/
package registry
