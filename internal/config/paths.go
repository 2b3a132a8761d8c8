package config

import (
	"os"
	"path/filepath"
)

// Paths contains the filesystem layout of an EasyADSB install.
type Paths struct {
	Home            string // Install home directory
	EnvFile         string // Durable KEY=value configuration file
	BackupsDir      string // Timestamped configuration backups
	DashboardConfig string // Generated dashboard config (read-only consumer)
	ComposeFeeders  string // Generated compose overlay for feeder services
	ComposeBase     string // Base compose file shipped with the install
	DataDir         string // Logged flight data (sqlite database)
	LogsDir         string // Console and daemon log files
}

// GetPaths returns the install layout rooted at home. Empty home resolves
// via EASYADSB_HOME, falling back to ~/.easyadsb.
func GetPaths(home string) Paths {
	if home == "" {
		home = GetHome()
	}
	return Paths{
		Home:            home,
		EnvFile:         filepath.Join(home, "easyadsb.env"),
		BackupsDir:      filepath.Join(home, "backups"),
		DashboardConfig: filepath.Join(home, "dashboard", "config.json"),
		ComposeFeeders:  filepath.Join(home, "compose", "docker-compose.feeders.yml"),
		ComposeBase:     filepath.Join(home, "compose", "docker-compose.yml"),
		DataDir:         filepath.Join(home, "data"),
		LogsDir:         filepath.Join(home, "logs"),
	}
}

// GetHome returns the EasyADSB home directory (~/.easyadsb unless
// EASYADSB_HOME overrides it).
func GetHome() string {
	if env := os.Getenv("EASYADSB_HOME"); env != "" {
		return env
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".easyadsb")
}

// EnsureDirs creates the directory structure for the install if it does
// not exist and returns the resolved paths.
func EnsureDirs(home string) (Paths, error) {
	paths := GetPaths(home)

	dirs := []string{
		paths.Home,
		paths.BackupsDir,
		filepath.Dir(paths.DashboardConfig),
		filepath.Dir(paths.ComposeFeeders),
		paths.DataDir,
		paths.LogsDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}
