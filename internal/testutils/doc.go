// Package testutils holds test helpers shared across packages, notably a fake engine that
// test binaries can launch as themselves.
package testutils
