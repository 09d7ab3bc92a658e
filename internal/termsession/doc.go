// Package termsession owns the long-lived terminal sessions served to
// browsers.
//
// # Core Components
//
//   - [Manager]: registry of sessions backed by a pseudo-terminal process.
//     It fans process output out to every attached [Client] and keeps a
//     bounded [Backlog] so late joiners see recent history.
//   - [Service]: the lifecycle API. It reconciles the live registry with the
//     durable metadata kept by the session store (list, create, delete) and
//     lazily restarts a stored session when a client asks for it.
//
// # Session Lifecycle
//
//  1. Created via [Manager.CreateSession] (idempotent per id) → alive.
//  2. Clients attach and detach freely; attaching returns the backlog taken
//     atomically with the registration, so replay followed by live events
//     has no gap and no duplicate.
//  3. The process exits → not alive. The entry stays registered, attached
//     clients stay attached and receive an exit event.
//  4. [Manager.DestroySession] → the process is killed, clients receive a
//     destroyed event and are dropped, and the id is freed. A late exit of
//     the killed process is ignored.
//
// # Concurrency
//
// The registry map has one mutex; each session has its own mutex guarding
// its backlog, client set and alive flag. Output from one process arrives on
// a single goroutine, so every client sees it in production order.
// [Client.Send] is called with the session mutex held and must not block.
//
// # Log Prefixes
//
// Registry operations log with [terminal]; store failures seen by the
// lifecycle service log with [session-store].
package termsession
