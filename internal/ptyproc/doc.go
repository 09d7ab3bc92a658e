// Package ptyproc runs a single interactive command on a pseudo-terminal.
//
// A [Process] exposes Write, Resize and Kill, and reports output and
// termination through [Handlers]. Output chunks are delivered once each, in
// the order the command produced them, from a single reader goroutine; the
// exit handler runs after the last chunk and never more than once. Exit is
// reported when the command itself ends, even if a background descendant
// keeps the terminal open.
//
// Kill is asynchronous: it sends SIGHUP to the process group, escalates to
// SIGKILL after the configured grace period, and the exit handler reports the
// real exit.
//
// Log lines use the [pty] prefix.
package ptyproc
