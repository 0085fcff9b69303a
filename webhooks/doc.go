// Package webhooks signs outbound syndication payloads and performs single,
// time-bounded delivery attempts and removal probes against partner sites.
//
// Signatures are lowercase hex HMAC-SHA256 over the exact payload bytes that
// are sent and stored, so a logged event can be replayed verbatim.
package webhooks
