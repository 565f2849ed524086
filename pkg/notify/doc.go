/*
Package notify implements the best-effort side channel pkg/agentapi posts
to when next-experiment hands out a fresh experiment: a comment on the
issue that tracks the regression being investigated.

Grounded on the teacher's event-driven notification shape (pkg/events
subscribers reacting to state transitions) but with a real external sink
instead of an in-process broker, since an issue comment is the kind of
thing spec.md explicitly asks the coordinator to produce. google/go-github
and golang.org/x/oauth2 are enrichments from the broader pack: no example
repo posts notifications this way, but both are mainstream idiomatic
choices for "authenticate to GitHub and call its REST API" in Go.
*/
package notify
