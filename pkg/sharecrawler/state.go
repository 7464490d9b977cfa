package sharecrawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the crawler's persisted progress, written to a JSON statefile
// after every slice so a restart resumes at the next prefix rather than
// repeating the whole cycle. There is no separate last-complete-bucket: a
// slice here is always a whole two-character storage-index prefix, so
// LastCompletePrefixIndex already identifies the last bucket finished.
type State struct {
	LastCompletePrefixIndex int            `json:"last-complete-prefix-index"`
	CurrentCycle            int64          `json:"current-cycle"`
	CurrentCycleStartTime   int64          `json:"current-cycle-start-time"`
	LastCycleFinished       *int64         `json:"last-cycle-finished"`
	CycleToDate             map[string]any `json:"cycle-to-date"`
}

// LoadState reads the statefile at path, returning a zero-value State (cycle
// 0, not yet started) if the file does not exist.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{LastCompletePrefixIndex: -1}, nil
		}
		return nil, fmt.Errorf("sharecrawler: read statefile: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("sharecrawler: parse statefile: %w", err)
	}
	return &state, nil
}

// Save atomically persists the state to path: write to a temp file in the
// same directory, then rename, so a crash mid-write never leaves a
// truncated statefile behind.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("sharecrawler: marshal statefile: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statefile-*")
	if err != nil {
		return fmt.Errorf("sharecrawler: create temp statefile: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sharecrawler: write temp statefile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sharecrawler: close temp statefile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sharecrawler: rename statefile: %w", err)
	}
	return nil
}
