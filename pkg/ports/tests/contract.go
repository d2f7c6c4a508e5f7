package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	ctx := context.Background()
	key := "engine-" + time.Now().Format("150405.000")

	t.Run("Lock And Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, unlock)
		assert.NoError(t, unlock(ctx))
	})

	t.Run("Second Holder Waits", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, key, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "lock must not be granted while held")

		require.NoError(t, unlock(ctx))

		unlock2, err := locker.Lock(ctx, key, 5*time.Second)
		require.NoError(t, err, "lock must be available after release")
		assert.NoError(t, unlock2(ctx))
	})
}
