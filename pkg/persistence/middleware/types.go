package middleware

import "github.com/aretw0/enginegate/pkg/ports"

// Middleware allows wrapping a DemoStore to add behavior.
type Middleware func(ports.DemoStore) ports.DemoStore

// Chain applies middlewares so that the first one is outermost.
func Chain(store ports.DemoStore, mws ...Middleware) ports.DemoStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
