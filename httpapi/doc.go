// Package httpapi serves the syndication HTTP surface: signed event intake on
// POST /events/{event}, read-only audit endpoints under /v1 and the
// Prometheus scrape endpoint.
package httpapi
