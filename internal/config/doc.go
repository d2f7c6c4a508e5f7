// Package config loads launcher settings from a YAML or JSON file and ENGINEGATE_* variables.
package config
