// Package graph renders the admission queue as a Mermaid diagram.
package graph
