// Package observability turns admission lifecycle events into Prometheus metrics and logs.
package observability
