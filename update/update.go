// Package update stages client upgrades downloaded from the server.
package update

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/utils"
	"golang.org/x/mod/semver"
)

const (
	DefaultMarkerPath = "update.marker"
	StagedSuffix      = ".new"
	VersionSuffix     = ".version"
)

// NeedsUpdate reports whether the server announced a newer version than current.
// Versions that are not semantic versions only need to differ.
func NeedsUpdate(current, latest string, upgradeFlag bool) bool {
	if !upgradeFlag || latest == "" {
		return false
	}
	c, l := canonical(current), canonical(latest)
	if semver.IsValid(c) && semver.IsValid(l) {
		return semver.Compare(l, c) > 0
	}
	return current != latest
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Marker records a downloaded update: the version on the first line and the
// source it came from on the second.
type Marker struct {
	Version string
	Source  string
}

func (m Marker) WriteMarker(path string) error {
	if m.Version == "" {
		return errors.New("marker version is required")
	}
	return utils.WriteFileAtomic(path, []byte(m.Version+"\n"+m.Source+"\n"), 0o644)
}

func LoadMarker(path string) (Marker, error) {
	f, err := os.Open(path)
	if err != nil {
		return Marker{}, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Marker{}, fmt.Errorf("read marker: %w", err)
	}
	if len(lines) == 0 || lines[0] == "" {
		return Marker{}, fmt.Errorf("marker %s is empty", path)
	}
	m := Marker{Version: lines[0]}
	if len(lines) > 1 {
		m.Source = lines[1]
	}
	return m, nil
}

// StagedPath is where a download for binaryPath waits until the next start.
func StagedPath(binaryPath string) string {
	return binaryPath + StagedSuffix
}

// VersionPath holds the version of the last update applied to binaryPath.
func VersionPath(binaryPath string) string {
	return binaryPath + VersionSuffix
}

// InstalledVersion returns the version recorded by the last applied update,
// or "" when none was recorded.
func InstalledVersion(binaryPath string) (string, error) {
	data, err := os.ReadFile(VersionPath(binaryPath))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read installed version: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ResolveVersion returns the newer of the configured version and the one
// recorded for binaryPath by ApplyPending.
func ResolveVersion(configured, binaryPath string) string {
	installed, err := InstalledVersion(binaryPath)
	if err != nil {
		logger.L().Warning("cannot read installed version", helpers.Error(err))
		return configured
	}
	if NeedsUpdate(configured, installed, true) {
		return installed
	}
	return configured
}

// ApplyPending moves a staged download over binaryPath, records the marker's
// version next to it and removes the marker. It returns false when nothing was staged.
func ApplyPending(binaryPath, markerPath string) (bool, error) {
	staged := StagedPath(binaryPath)
	info, err := os.Stat(staged)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat staged update: %w", err)
	}
	if err := os.Rename(staged, binaryPath); err != nil {
		return false, fmt.Errorf("replace binary: %w", err)
	}
	if err := os.Chmod(binaryPath, info.Mode()|0o755); err != nil {
		logger.L().Warning("cannot make updated binary executable", helpers.Error(err))
	}
	marker, err := LoadMarker(markerPath)
	if err != nil {
		logger.L().Warning("update applied without a marker, version unknown", helpers.Error(err))
	} else {
		if err := utils.WriteFileAtomic(VersionPath(binaryPath), []byte(marker.Version+"\n"), 0o644); err != nil {
			return true, fmt.Errorf("record installed version: %w", err)
		}
		logger.L().Info("update applied", helpers.String("version", marker.Version), helpers.String("source", marker.Source))
	}
	if err := os.Remove(markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, fmt.Errorf("remove marker: %w", err)
	}
	return true, nil
}
