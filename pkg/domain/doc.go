/*
Package domain contains the core types shared by the engine gate.

It defines the session lifecycle states, the error taxonomy (sentinel errors and the
SpawnError carrying a process error code) and the lifecycle events emitted by the
admission queue. The package is free of I/O.

# Key Entities

  - SessionState: Idle, Starting, Connected, Finished.
  - SpawnError: a failed engine launch with its ProcessErrorCode.
  - LifecycleHooks: callbacks used by metrics and logging.
*/
package domain
