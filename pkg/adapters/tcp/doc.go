// Package tcp provides the process-wide loopback listener that spawned engines
// connect back to.
package tcp
