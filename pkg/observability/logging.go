package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/enginegate/pkg/domain"
)

// LogHooks writes every lifecycle event to logger at debug level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionEvent: func(ctx context.Context, e *domain.SessionEvent) {
			logger.DebugContext(ctx, string(e.Type),
				"session_id", e.SessionID,
				"state", e.State,
				"queue_depth", e.QueueDepth,
			)
		},
		OnTransfer: func(ctx context.Context, e *domain.TransferEvent) {
			logger.DebugContext(ctx, string(e.Type), "session_id", e.SessionID, "bytes", e.Bytes)
		},
		OnSpawnError: func(ctx context.Context, e *domain.SpawnErrorEvent) {
			logger.DebugContext(ctx, string(e.Type), "session_id", e.SessionID, "code", e.Err.Code.String())
		},
	}
}
