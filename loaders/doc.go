// Package loaders provides middleware for resource.MapLoader: a shared
// store in front of the backend, a circuit breaker, and per key fan-out.
//
// Middleware composes from the outside in:
//
//	loader := loaders.Shared(s, "connections", time.Minute,
//	    loaders.Breaker(cb, loaders.Parallel(8, backend)))
package loaders
