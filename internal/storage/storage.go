package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/pokertour/internal/tournament"
)

// DefaultDataDir is where snapshots and the cache file live unless configured
const DefaultDataDir = "~/.local/share/pokertour"

// Storage handles persistence of listing snapshots
type Storage struct {
	dataDir string
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	dataDir, err := ExpandPath(dataDir)
	if err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
	}, nil
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// DataDir returns the resolved data directory
func (s *Storage) DataDir() string {
	return s.dataDir
}

// getSnapshotPath returns the path to the snapshot file
func (s *Storage) getSnapshotPath(name string) string {
	if name == "" || strings.ToUpper(name) == "ALL" {
		return filepath.Join(s.dataDir, "snapshot.json")
	}
	return filepath.Join(s.dataDir, fmt.Sprintf("snapshot_%s.json", strings.ToUpper(name)))
}

// LoadSnapshot loads a snapshot from disk
func (s *Storage) LoadSnapshot(name string) (*tournament.Snapshot, error) {
	path := s.getSnapshotPath(name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No previous snapshot, return empty one
			return tournament.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot tournament.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	if snapshot.Tournaments == nil {
		snapshot.Tournaments = make(map[string]tournament.Tournament)
	}

	return &snapshot, nil
}

// SaveSnapshot saves a snapshot to disk
func (s *Storage) SaveSnapshot(snapshot *tournament.Snapshot, name string) error {
	snapshot.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := writeFileAtomic(s.getSnapshotPath(name), data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

// CreateSnapshotFromTournaments creates and saves a snapshot from a list of tournaments
func (s *Storage) CreateSnapshotFromTournaments(tournaments []tournament.Tournament, name string) error {
	snapshot := tournament.CreateSnapshot(tournaments, time.Now())
	return s.SaveSnapshot(snapshot, name)
}

// GetTournamentByID retrieves a tournament by ID from the combined snapshot
func (s *Storage) GetTournamentByID(id string) (*tournament.Tournament, error) {
	snapshot, err := s.LoadSnapshot("all")
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if t, exists := snapshot.Tournaments[id]; exists {
		return &t, nil
	}

	return nil, fmt.Errorf("tournament not found: %s", id)
}

// writeFileAtomic writes data to a temp file in the same directory and renames it
// over path, so readers never see a partial document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        // nolint:errcheck
		os.Remove(tmpName) // nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName) // nolint:errcheck
		return err
	}
	return os.Rename(tmpName, path)
}
