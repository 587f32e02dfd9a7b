// Package state persists the match lifecycle record and the pending
// provisioning job as JSON files in the match directory shared with the
// provisioning script.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MatchState is the single lifecycle record. Exactly one exists; it is
// overwritten, never deleted. When Active is true, Map and StartedBy are
// set. When Active is false, LastEnded holds the end time of the previous
// match, if any.
type MatchState struct {
	Active    bool       `json:"active"`
	Map       string     `json:"map,omitempty"`
	StartedBy string     `json:"started_by,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastEnded *time.Time `json:"last_ended,omitempty"`
}

// PendingJob describes the next match for the external provisioning
// script, which consumes and removes job.json. The ID lets the script
// correlate pickups in its own logs.
type PendingJob struct {
	ID        string    `json:"id"`
	Map       string    `json:"map"`
	Players   []string  `json:"players"`
	StartedBy string    `json:"started_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the lifecycle record and pending job. Operations are not
// internally locked; the match engine serializes all access.
type Store interface {
	// Read returns the current record, or the zero Idle record if the
	// file is missing or unreadable. It never fails.
	Read() MatchState
	// WriteActive replaces the record with an active one.
	WriteActive(mapName, startedBy string, startedAt time.Time) error
	// ClearActive replaces the record with an idle one stamped with the
	// end time, and removes any pending job. Removing an absent job is
	// not an error.
	ClearActive(endedAt time.Time) error
	// WriteJob replaces or creates the pending job.
	WriteJob(job PendingJob) error
}

// FileStore implements Store with state.json and job.json under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) statePath() string { return filepath.Join(s.dir, "state.json") }
func (s *FileStore) jobPath() string   { return filepath.Join(s.dir, "job.json") }

func (s *FileStore) Read() MatchState {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		return MatchState{}
	}
	var st MatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return MatchState{}
	}
	return st
}

func (s *FileStore) WriteActive(mapName, startedBy string, startedAt time.Time) error {
	return s.writeFile(s.statePath(), MatchState{
		Active:    true,
		Map:       mapName,
		StartedBy: startedBy,
		StartedAt: &startedAt,
	})
}

func (s *FileStore) ClearActive(endedAt time.Time) error {
	if err := s.writeFile(s.statePath(), MatchState{LastEnded: &endedAt}); err != nil {
		return err
	}
	if err := os.Remove(s.jobPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing job file: %w", err)
	}
	return nil
}

func (s *FileStore) WriteJob(job PendingJob) error {
	return s.writeFile(s.jobPath(), job)
}

// writeFile marshals v and writes it via a temp file and rename, so a
// crash mid-write never leaves a torn record behind.
func (s *FileStore) writeFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
