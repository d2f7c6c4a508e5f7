/*
Package process spawns the native engine executable.

The Launcher never blocks on the engine: it starts the process, hands the listener port
over through the argument list and reports failures through a callback carrying a
domain.SpawnError, so the admission queue can treat them like a client disconnect.
*/
package process
