package cli

import (
	"github.com/aretw0/enginegate/internal/config"
	"github.com/aretw0/enginegate/pkg/adapters/file"
	"github.com/aretw0/enginegate/pkg/adapters/memory"
	"github.com/aretw0/enginegate/pkg/adapters/redis"
	"github.com/aretw0/enginegate/pkg/persistence/middleware"
	"github.com/aretw0/enginegate/pkg/ports"
)

// Backends are the storage and locking adapters selected by the config.
type Backends struct {
	Demos  ports.DemoStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases network clients.
func (b *Backends) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// NewBackends picks Redis when redis.addr is set (demos plus the engine lock),
// else the file store under demo.dir, else memory when demo.dir is empty.
// Recordings are encrypted when demo.key is set.
func NewBackends(cfg config.Config) (*Backends, error) {
	b := newBackends(cfg)
	if cfg.Demo.Key == "" {
		return b, nil
	}
	keys, err := middleware.ParseKeys(cfg.Demo.Key, cfg.Demo.FallbackKeys...)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Demos = middleware.Chain(b.Demos, middleware.NewEncryptionMiddleware(keys))
	return b, nil
}

func newBackends(cfg config.Config) *Backends {
	if cfg.Redis.Enabled() {
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix+"demo:"),
			redis.WithTTL(cfg.Demo.TTL),
		)
		return &Backends{
			Demos:  store,
			Locker: redis.NewLocker(store.Client(), cfg.Redis.Prefix),
			close:  store.Close,
		}
	}
	if cfg.Demo.Dir == "" {
		return &Backends{Demos: memory.NewStore()}
	}
	return &Backends{Demos: file.New(cfg.Demo.Dir)}
}
