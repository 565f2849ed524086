package storage

// Store is the narrow key/value-per-bucket contract pkg/results and
// pkg/registry build on. It deliberately exposes bytes, not domain types:
// callers own JSON-encoding their own records, the way the teacher's
// BoltStore encodes per-entity, but without a bucket method per entity.
type Store interface {
	// Put writes value under key in bucket, creating bucket if absent.
	Put(bucket, key, value []byte) error
	// Get reads the value under key in bucket. Returns (nil, false, nil)
	// if the key is absent.
	Get(bucket, key []byte) ([]byte, bool, error)
	// ForEach calls fn for every key/value pair in bucket, in key order.
	ForEach(bucket []byte, fn func(key, value []byte) error) error
	// Delete removes key from bucket. A no-op if the key is absent.
	Delete(bucket, key []byte) error
	// Close releases the underlying database handle.
	Close() error
}
