// Package core holds the webhook domain: subscriptions, delivery jobs, the
// contracts their stores and collaborators implement, and the service that
// manages webhooks and fans events out into delivery jobs. Adapters depend
// on this package; core never imports storage or transport code.
package core
