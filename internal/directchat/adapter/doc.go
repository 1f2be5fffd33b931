// Package adapter contains implementations of interfaces defined in app and
// port: the Postgres chat store and user directory, and the Redis-backed
// token revocation check and event rate limiter.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("directchat/adapter")
