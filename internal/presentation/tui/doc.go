// Package tui renders launcher output for humans: error dialogs, the banner and markdown reports.
package tui
