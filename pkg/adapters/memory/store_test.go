package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/enginegate/pkg/adapters/memory"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunDemoStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	demo := []byte{1, 'a'}
	require.NoError(t, store.Save(ctx, "d", demo))
	demo[1] = 'z'

	loaded, err := store.Load(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 'a'}, loaded)

	loaded[1] = 'q'
	again, _ := store.Load(ctx, "d")
	assert.Equal(t, []byte{1, 'a'}, again)
}
