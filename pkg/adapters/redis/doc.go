// Package redis provides Redis-backed demo storage and the cross-process engine lock.
package redis
