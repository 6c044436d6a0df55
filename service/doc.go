// Package service implements the herald broker engine: the shared
// topic/subscription/session state, the session registry driven by the
// transport, and the asynchronous notification dispatcher.
//
// Design decisions:
//   - Single global lock: every operation that touches the topic
//     registry, a topic log, a subscription set or a session runs under
//     one RWMutex, so cross-entity invariants ("topic must exist before
//     subscribe succeeds") hold atomically.
//   - Dispatch outside the lock: deliveries are collected while the
//     lock is held and handed to a worker pool after it is released. A
//     slow or failing subscriber never stalls publishers or other
//     subscribers.
//   - Failure containment: errors and panics raised by a Notifier are
//     logged and discarded at the dispatch boundary. There are no
//     retries and no dead-letter mechanism; re-subscribing or
//     re-logging-in replays the full backlog.
//   - No ordering is guaranteed between dispatches to different users,
//     nor between a backlog replay and a live publish racing for the
//     same user around subscription time.
package service
