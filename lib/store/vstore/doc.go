// Package vstore implements the validated store engine on top of any
// storage.Backend.
//
// The package focuses on:
//   - The ordered read pipeline: deserialize, then expiration, then
//     migration, then validation. Each stage either passes the value on or
//     collapses the read to "no value", optionally purging the record
//   - A write path that validates before persisting, stamps the record
//     with version, timestamp and optional expiry, and notifies local
//     subscribers synchronously
//   - Rate-limited writes (debounce or throttle) with explicit flush and
//     cancel semantics
//   - Cross-context change delivery: a single lazily-attached backend
//     watcher re-runs foreign changes through the read pipeline before
//     notifying, so subscribers only ever see valid values
//
// Example usage:
//
//	hub := memory.NewHub(nil)
//	defer hub.Close()
//
//	s, err := vstore.New(vstore.Config[Settings]{
//		Key:     "settings",
//		Schema:  schema.Struct[Settings](),
//		Backend: hub.Handle(),
//		Version: 2,
//		Migrate: migrateSettings,
//		TTL:     24 * time.Hour,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	value, ok := s.Get()
//
// Thread-safety: a store instance is safe for concurrent use. Reads run
// lock-free against the backend; Update and the migration rewrite
// serialize against plain writes on the same instance.
package vstore
