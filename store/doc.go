// Package store is the shared second tier behind resource loaders.
//
// A resource.MapResource keeps its own table per process. When several
// processes serve the same backend, a [Store] lets them share loaded values
// so the backend sees one request per key and TTL instead of one per
// process.
//
// Three implementations are provided:
//
//   - [NewMemory] keeps values in a mutex guarded map. Values are stored
//     without copying. A background sweep drops expired values.
//   - [NewRedis] keeps values in Redis hashes, encoded with msgpack. Reads
//     return [Encoded] payloads; use [Get] to decode them.
//   - [NewComposite] chains stores, for an in-memory L1 in front of Redis.
//
// [Exec] is the cache-aside helper used by the shared loader:
//
//	found, conn, err := store.Exec(ctx, store.ExecConfig{Key: "conn:" + id}, s,
//	    func(ctx context.Context) (Connection, bool, error) {
//	        return backend.Connection(ctx, id)
//	    },
//	)
//
// Read errors are returned without calling the invoker. Write errors are
// ignored, the invoker result is still returned.
package store
