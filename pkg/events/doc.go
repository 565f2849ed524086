/*
Package events provides an in-memory event broker used to fan out
experiment-runner lifecycle events to interested subscribers. pkg/agentapi
publishes experiment.queued/assigned and task.failed/completed,
pkg/reconciler publishes agent.lost, and pkg/report publishes
report.rendered/failed, so anything else watching (a dashboard, an
operator's `crater events` tail, a future webhook) can react to state
changes without coupling to the registry or worker pool directly.
pkg/report also subscribes for experiment.completed. No component in this
repository publishes experiment.completed, task.started or
agent.registered.

	┌────────────────── BROKER ──────────────────┐
	│                                             │
	│  Publish -> broadcast (RLock, fan out) ─┬──>│ Subscriber (buf 64)
	│                                         ├──>│ Subscriber (buf 64)
	│                                         └──>│ ...
	│  a full subscriber buffer drops the event,  │
	│  Publish itself never blocks               │
	│                                             │
	│  experiment.queued/assigned/completed       │
	│  task.started/failed/completed              │
	│  agent.registered/lost                      │
	│  report.rendered/failed                     │
	└─────────────────────────────────────────────┘

Broadcasting happens synchronously inside Publish rather than through a
buffered intake channel drained by a background goroutine: the
teacher's events.go used that extra stage, but fan-out here is cheap
enough (a map iteration of non-blocking sends) that the indirection
bought nothing. Start is kept as a no-op so Broker still slots into
cmd/crater's start/defer-Stop pattern for background components.
*/
package events
