/*
Package eventloop provides the single-goroutine dispatcher that every engine session
callback runs on.

Goroutines that block (accepting connections, reading sockets, waiting for processes)
never touch session state directly: they Post a closure and return. Callbacks may Defer
work that must only happen after they return, such as disposing of the session whose
callback is currently executing.
*/
package eventloop
