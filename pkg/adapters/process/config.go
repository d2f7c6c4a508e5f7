package process

import (
	"path/filepath"
)

// DefaultExecutable is the engine binary name looked up in the bin directory.
const DefaultExecutable = "hwengine"

// Config describes where the engine lives and how its output is handled.
type Config struct {
	BinDir     string            `yaml:"bin_dir" json:"bin_dir" mapstructure:"bin_dir"`
	Executable string            `yaml:"executable" json:"executable" mapstructure:"executable"`
	DevBuild   bool              `yaml:"dev_build" json:"dev_build" mapstructure:"dev_build"`
	Env        map[string]string `yaml:"env" json:"env" mapstructure:"env"`
}

// Path returns the absolute-ish path of the engine executable.
func (c Config) Path() string {
	exe := c.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	if c.BinDir == "" {
		return exe
	}
	return filepath.Join(c.BinDir, exe)
}

// Options converts the config into launcher options.
func (c Config) Options() []LauncherOption {
	opts := []LauncherOption{
		WithBinDir(c.BinDir),
		WithForwardedOutput(c.DevBuild),
	}
	if c.Executable != "" {
		opts = append(opts, WithExecutable(c.Executable))
	}
	if len(c.Env) > 0 {
		opts = append(opts, WithEnv(c.Env))
	}
	return opts
}
