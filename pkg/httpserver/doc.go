// Package httpserver wraps net/http's Server with graceful shutdown,
// signal handling, and health probe endpoints.
package httpserver
