package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
)

const Logo = "◆"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// Set by the root command's persistent flags.
var (
	ProjectRoot string
	Debug       bool
)

// ResolveProject returns the absolute project root, defaulting to the
// working directory.
func ResolveProject() (string, error) {
	root := ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Abs(root)
}

// LoadConfig loads the layered config for the project and applies its
// logging section.
func LoadConfig() (*config.Config, string, error) {
	project, err := ResolveProject()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadConfig(project)
	if err != nil {
		return nil, "", fmt.Errorf("error loading config: %w", err)
	}

	cfg.RLock()
	logCfg := cfg.Log
	cfg.RUnlock()
	if logCfg.Level != "" && !Debug {
		logger.SetLevel(logger.ParseLevel(logCfg.Level))
	}
	if logCfg.File != "" {
		if err := logger.EnableFileLogging(logCfg.File); err != nil {
			return nil, "", fmt.Errorf("enable file logging: %w", err)
		}
	}
	return cfg, project, nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}
