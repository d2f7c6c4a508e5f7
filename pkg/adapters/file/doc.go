// Package file stores demo recordings as files on the local filesystem.
package file
