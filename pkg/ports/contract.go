package ports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDemoStoreContract runs a suite of tests to verify that a DemoStore implementation
// adheres to the defined interface contract.
func RunDemoStoreContract(t *testing.T, store DemoStore) {
	ctx := context.Background()
	demoID := "contract-demo-" + time.Now().Format("20060102150405")

	// Recordings are binary: length bytes of 0 and 255 must survive.
	recording := []byte{3, 'e', 'S', 'D', 0, 255}
	recording = append(recording, bytes.Repeat([]byte{'x'}, 255)...)

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, demoID, recording)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, demoID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, recording, loaded)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, demoID, []byte{1, 'q'}))

		loaded, err := store.Load(ctx, demoID)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 'q'}, loaded)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+demoID)
		assert.ErrorIs(t, err, domain.ErrDemoNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, demoID, recording)
		require.NoError(t, err)

		err = store.Delete(ctx, demoID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, demoID)
		assert.ErrorIs(t, err, domain.ErrDemoNotFound, "Load after Delete should return ErrDemoNotFound")

		assert.NoError(t, store.Delete(ctx, demoID), "Deleting twice should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		id1 := demoID + "-1"
		id2 := demoID + "-2"
		_ = store.Save(ctx, id1, recording)
		_ = store.Save(ctx, id2, recording)

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		demos, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, demos, id1)
		assert.Contains(t, demos, id2)
	})
}
