// Package inbound is the HTTP surface that accepts syndication events.
//
// Accepted events are turned into durable jobs and acknowledged with 202;
// the work itself happens in the job runner. Redelivered events carrying the
// same event id are dropped by the job queue.
package inbound
