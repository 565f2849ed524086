/*
Package results implements the task-result store (C2): idempotent,
write-once, keyed by experiment/package/toolchain.

Grounded on pkg/storage's bucket-per-entity, JSON-value pattern, with an
added per-key in-process mutex and read-before-write conflict check that
the teacher's plain upsert-on-write storage layer does not need, since the
teacher never requires two writers to agree on a single value.
*/
package results
