// Package transport is the outbound HTTP side of webhook delivery. Client
// posts JSON payloads signed with HMAC-SHA256 and reports connection
// failures as data rather than errors.
package transport
