// Package app provides the service lifecycle: background model loading and
// the readiness state shared with request handlers.
package app

import (
	"sync"

	"manga-patcher/internal/cleaner"
	"manga-patcher/internal/ocr"
)

// Loader task names.
const (
	TaskCleaner = "cleaner"
	TaskOCR     = "ocr"
)

// EventType identifies different application events.
type EventType int

const (
	EventTaskReady EventType = iota
	EventTaskFailed
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// State is the readiness context handed to request handlers. Loader tasks
// are the only writers; everything else reads.
type State struct {
	mu sync.RWMutex

	// BuildID identifies the running build in health reports.
	BuildID string

	// CleanerMode is the configured cleaning strategy.
	CleanerMode cleaner.Mode

	cleaner    cleaner.Cleaner
	ocr        *ocr.Engine
	supervisor *Supervisor

	// Event listeners
	listeners map[EventType][]EventListener
}

// NewState creates the state for a cleaner selected at startup.
func NewState(mode cleaner.Mode, c cleaner.Cleaner, buildID string) *State {
	s := &State{
		BuildID:     buildID,
		CleanerMode: mode,
		cleaner:     c,
		supervisor:  NewSupervisor(),
		listeners:   make(map[EventType][]EventListener),
	}
	s.supervisor.OnResolve(func(st TaskStatus) {
		if st.State == TaskReady {
			s.Emit(EventTaskReady, st)
		} else {
			s.Emit(EventTaskFailed, st)
		}
	})
	return s
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Supervisor returns the loader supervisor.
func (s *State) Supervisor() *Supervisor {
	return s.supervisor
}

// CleanerName returns the model name of the configured cleaner.
func (s *State) CleanerName() string {
	if s.cleaner != nil {
		return s.cleaner.Name()
	}
	if s.CleanerMode == cleaner.ModeLama {
		return cleaner.ModelNameLama
	}
	return cleaner.ModelNameOpenCV
}

// CleanerReady reports whether the cleaner loader succeeded.
func (s *State) CleanerReady() bool {
	return s.cleaner != nil && s.supervisor.Ready(TaskCleaner)
}

// NeuralCleaner returns the cleaner when it is a ready neural cleaner.
func (s *State) NeuralCleaner() (*cleaner.Neural, bool) {
	n, ok := s.cleaner.(*cleaner.Neural)
	if !ok || !s.CleanerReady() {
		return nil, false
	}
	return n, true
}

// SetOCR installs the OCR engine. Called by the OCR loader.
func (s *State) SetOCR(e *ocr.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ocr = e
}

// OCR returns the engine once its loader succeeded.
func (s *State) OCR() (*ocr.Engine, bool) {
	s.mu.RLock()
	e := s.ocr
	s.mu.RUnlock()
	if e == nil || !s.supervisor.Ready(TaskOCR) {
		return nil, false
	}
	return e, true
}

// OCRModelName returns the OCR model name, or "" when OCR is not loaded.
func (s *State) OCRModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ocr == nil {
		return ""
	}
	return s.ocr.ModelName()
}

// ModelsLoaded reports whether every started loader succeeded.
func (s *State) ModelsLoaded() bool {
	tasks := s.supervisor.Status()
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.State != TaskReady {
			return false
		}
	}
	return true
}

// Close releases loaded collaborators.
func (s *State) Close() error {
	s.mu.Lock()
	e := s.ocr
	s.ocr = nil
	s.mu.Unlock()
	if e != nil {
		return e.Close()
	}
	return nil
}
