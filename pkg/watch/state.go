package watch

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateFileName = "watch_state.json"

// RunState contains the last run information for a watch
type RunState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	Saved          int       `json:"saved"`
	Crawled        int       `json:"crawled"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// State contains the persistent state for the watch scheduler
type State struct {
	Watches   map[string]RunState `json:"watches"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     State
	mu        sync.RWMutex
	now       func() time.Time
}

// NewStateManager creates a state manager writing into stateDir
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     State{Watches: make(map[string]RunState)},
		now:       time.Now,
	}
}

// Load loads the state from disk. A missing file starts fresh.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = State{Watches: make(map[string]RunState)}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if m.state.Watches == nil {
		m.state.Watches = make(map[string]RunState)
	}
	return nil
}

// Save writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = m.now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(m.statePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Get returns the state of one watch
func (m *StateManager) Get(name string) (RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Watches[name]
	return state, ok
}

// Record stores the outcome of a run that finished now
func (m *StateManager) Record(name string, success bool, saved, crawled int, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Watches[name] = RunState{
		LastRunTime:    m.now(),
		LastRunSuccess: success,
		Saved:          saved,
		Crawled:        crawled,
		ErrorMessage:   errorMsg,
	}
}

// ShouldRun reports whether interval has passed since the last run. Watches never run are due.
func (m *StateManager) ShouldRun(name string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Watches[name]
	if !ok {
		return true
	}
	return m.now().Sub(state.LastRunTime) >= interval
}

// NextRunTime returns when the watch is next due
func (m *StateManager) NextRunTime(name string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Watches[name]
	if !ok {
		return m.now()
	}
	return state.LastRunTime.Add(interval)
}

// All returns a copy of every watch state
func (m *StateManager) All() map[string]RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.state.Watches)
}
