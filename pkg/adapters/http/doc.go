// Package http serves the admission status API: the session queue, a live event stream,
// recorded demos and Prometheus metrics.
package http
