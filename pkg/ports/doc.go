/*
Package ports defines the driven ports (interfaces) of the engine gate.

These interfaces decouple the admission queue from the socket, process and storage
implementations, so tests can substitute fakes for each of them.

# Key Interfaces

  - ConnSource: the shared loopback listener with a single-consumer connection signal.
  - ProcessLauncher: spawns the engine and reports spawn failures asynchronously.
  - Presenter: surfaces spawn and fatal errors to the user.
  - DemoStore: persists demo recordings.
  - DistributedLocker: optional cross-process single-instance lock.
*/
package ports
