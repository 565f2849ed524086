/*
Package sandbox defines the Sandbox interface the worker pool executes
tasks through, plus a containerd-backed default implementation.

Grounded on the teacher's pkg/runtime/containerd.go (namespace handling,
oci.SpecOpts construction, client.NewContainer/NewTask/Wait sequence),
trimmed from long-running service containers to one-shot batch execution:
no port publishing, restart policy, or health check, since a build/test/
lint invocation runs once and exits.
*/
package sandbox
