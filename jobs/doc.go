// Package jobs runs the durable syndication jobs.
//
// Inbound events and periodic sweeps are enqueued as job messages, and a
// Runner drains the queue through the command layer. Every handler is safe to
// re-run: the store guards make a repeated revocation or verification a no-op
// for rows that already moved on.
package jobs
