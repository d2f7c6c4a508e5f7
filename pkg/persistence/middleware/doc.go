// Package middleware wraps demo stores with cross-cutting behaviour such as encryption at rest.
package middleware
