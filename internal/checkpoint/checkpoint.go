// Package checkpoint persists import progress so interrupted runs resume
// instead of repeating work. Completion is tracked per named step; a step is
// only consulted together with the fingerprint of its input, so replacing a
// source file invalidates the corresponding step automatically.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the recorded outcome of a pipeline step.
type StepStatus string

const (
	StatusDone StepStatus = "done"
)

// StepRecord is the persisted state of one completed step.
type StepRecord struct {
	Status      StepStatus `json:"status"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Store is the on-disk checkpoint. Every mutation is written through to the
// backing file immediately, so a crash between steps loses at most the step
// in flight.
type Store struct {
	path  string
	RunID string                `json:"run_id"`
	Steps map[string]StepRecord `json:"steps"`
}

// Load opens the checkpoint at path, creating a fresh one with a new run ID
// when the file does not exist yet.
func Load(path string) (*Store, error) {
	s := &Store{
		path:  path,
		RunID: uuid.NewString(),
		Steps: make(map[string]StepRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to parse %s: %w", path, err)
	}
	if s.Steps == nil {
		s.Steps = make(map[string]StepRecord)
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	return s, nil
}

// IsDone reports whether the named step completed against an input with the
// given fingerprint. An empty fingerprint matches any recorded one, for
// steps with no single input file.
func (s *Store) IsDone(step, fingerprint string) bool {
	rec, ok := s.Steps[step]
	if !ok || rec.Status != StatusDone {
		return false
	}
	if fingerprint == "" {
		return true
	}
	return rec.Fingerprint == fingerprint
}

// IsStale reports whether the step completed against a different input: it
// was recorded done with a fingerprint that no longer matches. Stale steps
// must be redone, and any rows their earlier run loaded must be cleared.
func (s *Store) IsStale(step, fingerprint string) bool {
	rec, ok := s.Steps[step]
	if !ok || rec.Status != StatusDone {
		return false
	}
	return fingerprint != "" && rec.Fingerprint != fingerprint
}

// MarkDone records the step as complete and persists the checkpoint.
func (s *Store) MarkDone(step, fingerprint string) error {
	s.Steps[step] = StepRecord{
		Status:      StatusDone,
		Fingerprint: fingerprint,
		CompletedAt: time.Now().UTC(),
	}
	return s.save()
}

// Reset discards all recorded progress and assigns a new run ID.
func (s *Store) Reset() error {
	s.Steps = make(map[string]StepRecord)
	s.RunID = uuid.NewString()
	return s.save()
}

// save writes the checkpoint atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated checkpoint behind.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: failed to encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("checkpoint: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: failed to replace %s: %w", s.path, err)
	}
	return nil
}
