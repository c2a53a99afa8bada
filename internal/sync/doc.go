// Package sync implements bidirectional synchronization between the host
// browser's native bookmark tree and the Link-o-Saurus catalog.
//
// The engine keeps two independent id spaces correlated through mapping
// records: native tree node ids on one side, catalog Board/Category/
// Bookmark ids on the other. Change flows in both directions at once:
//
//   - Inbound: native tree change events are queued and replayed onto the
//     catalog, with bounded-lifetime retries and field-level conflict
//     resolution.
//   - Outbound: catalog mutations are replayed onto the native tree in
//     paced batches, creating mirrored folder structure on demand under
//     a dedicated mirror root folder.
//
// Both directions consult a per-key reentrancy guard before acting and
// register their own writes in it, so the mirrored event a write produces
// on the other side is recognized as self-caused and suppressed instead
// of being re-ingested.
//
// The Engine owns all mutable sync state (guard sets, mirror root cache,
// listener registration). Construct one per process; tests construct as
// many as they need without cross-test leakage.
package sync
