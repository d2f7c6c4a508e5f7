// Package memory keeps demo recordings in process memory.
package memory
