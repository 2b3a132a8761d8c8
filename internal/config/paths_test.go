package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetHomeHonorsEnvOverride(t *testing.T) {
	t.Setenv("EASYADSB_HOME", "/srv/easyadsb")
	if got := GetHome(); got != "/srv/easyadsb" {
		t.Errorf("GetHome() = %s; want /srv/easyadsb", got)
	}
}

func TestGetHomeDefaultsToUserHome(t *testing.T) {
	t.Setenv("EASYADSB_HOME", "")
	userHome, _ := os.UserHomeDir()
	want := filepath.Join(userHome, ".easyadsb")
	if got := GetHome(); got != want {
		t.Errorf("GetHome() = %s; want %s", got, want)
	}
}

func TestGetPathsLayout(t *testing.T) {
	paths := GetPaths("/tmp/eatest")

	if paths.EnvFile != "/tmp/eatest/easyadsb.env" {
		t.Errorf("EnvFile = %s", paths.EnvFile)
	}
	if !strings.HasSuffix(paths.DashboardConfig, filepath.Join("dashboard", "config.json")) {
		t.Errorf("DashboardConfig = %s", paths.DashboardConfig)
	}
	if paths.ComposeFeeders != filepath.Join("/tmp/eatest", "compose", "docker-compose.feeders.yml") {
		t.Errorf("ComposeFeeders = %s", paths.ComposeFeeders)
	}
	if filepath.Dir(paths.ComposeBase) != filepath.Dir(paths.ComposeFeeders) {
		t.Errorf("ComposeBase = %s", paths.ComposeBase)
	}
	if paths.BackupsDir != "/tmp/eatest/backups" {
		t.Errorf("BackupsDir = %s", paths.BackupsDir)
	}
}

func TestEnsureDirsCreatesLayout(t *testing.T) {
	home := filepath.Join(t.TempDir(), "install")
	paths, err := EnsureDirs(home)
	if err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{paths.BackupsDir, paths.DataDir, paths.LogsDir, filepath.Dir(paths.DashboardConfig)} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing after EnsureDirs", dir)
		}
	}
}
