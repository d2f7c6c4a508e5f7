/*
Package session implements engine admission and the loopback handshake.

A Manager is the process-scoped admission queue: it lets one Session at a time launch
the engine, waits for the engine to connect back on the shared listener, sends the
handshake and relays frames until the engine hangs up. Later requests queue behind the
current one and start when it signals ready; a waiting request whose Handler reports
CouldBeRemoved can be displaced by a newer one.

Everything runs on a single eventloop.Loop goroutine, so sessions carry no locks.
Sessions are disposed through Loop.Defer, never from inside their own callbacks.
*/
package session
