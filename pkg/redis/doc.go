// Package redis wraps the go-redis client with retrying connection setup
// and a readiness probe.
//
// In this application Redis is optional: when REDIS_URL is set, the tenant
// existence cache is shared fleet-wide through Redis; when unset, each
// replica keeps an in-process cache.
package redis
