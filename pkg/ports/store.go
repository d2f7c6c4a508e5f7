package ports

import (
	"context"
)

// DemoStore persists the byte stream recorded by a demo-mode session.
// The recording is exactly what was written to the engine socket, in wire order.
type DemoStore interface {
	// Save persists the recording for a given demo ID, replacing any previous one.
	Save(ctx context.Context, demoID string, demo []byte) error

	// Load retrieves a recording.
	// Returns domain.ErrDemoNotFound if the demo does not exist.
	Load(ctx context.Context, demoID string) ([]byte, error)

	// Delete removes a recording. Deleting a missing demo is not an error.
	Delete(ctx context.Context, demoID string) error

	// List returns the IDs of all stored recordings.
	List(ctx context.Context) ([]string, error)
}
