/*
Package enginegate runs a native game engine as a child process and talks to it over a
loopback socket, one engine at a time.

The engine is started with the port of a shared 127.0.0.1 listener on its command line and
connects back. Messages in both directions are frames: one length byte followed by at most
255 payload bytes. Requests to run the engine while another session holds it are queued;
each queued session starts when the one ahead of it reports ready.

# Usage

	gate := enginegate.New(process.Config{BinDir: "/usr/lib/hedgewars/bin"},
		enginegate.WithLogger(logger),
	)
	go gate.Run(ctx)

	s, err := gate.Launch(ctx, handler, false)

The handler receives FirstSend, ClientRead and ClientDisconnect callbacks on the gate's
event loop. See package session for the admission rules and package frame for the wire
format.
*/
package enginegate
