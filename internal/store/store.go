// Package store holds task outputs in a concurrent map and answers
// structured lookups against them, grounded on the Rust original's
// store/datastore.rs DataStore (a DashMap of task id to TaskResult) and
// the teacher's lock-free cache idiom (runtime/agent/engine uses the same
// get-or-insert shape for provider handles).
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/nikahq/nika/internal/jsonpath"
)

// Status is the terminal state of a task execution.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
)

// Result is the immutable triple (output, duration, status) produced by a
// task. Output is shared: once inserted it is never mutated, so readers may
// hold a reference without copying.
type Result struct {
	Output   any
	Duration time.Duration
	Status   Status
	Err      string
}

// Success builds a successful Result.
func Success(output any, d time.Duration) Result {
	return Result{Output: output, Duration: d, Status: StatusSuccess}
}

// SuccessString builds a successful Result whose output is a JSON string
// value (the common case when a verb returns raw text with no output
// policy).
func SuccessString(output string, d time.Duration) Result {
	return Result{Output: output, Duration: d, Status: StatusSuccess}
}

// Failed builds a failed Result; Output is nil.
func Failed(errMsg string, d time.Duration) Result {
	return Result{Duration: d, Status: StatusFailed, Err: errMsg}
}

// IsSuccess reports whether the result completed successfully.
func (r Result) IsSuccess() bool { return r.Status == StatusSuccess }

// Store is a concurrent map from task id to Result. Writers insert at most
// once per id in normal operation (the DAG guarantees a single producer per
// id); the map itself tolerates overwrite for last-write-wins semantics.
type Store struct {
	mu      sync.RWMutex
	results map[string]Result
}

// New returns an empty Store.
func New() *Store {
	return &Store{results: make(map[string]Result)}
}

// Insert records the result for taskID, amortized O(1) and safe for
// concurrent use alongside readers.
func (s *Store) Insert(taskID string, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[taskID] = result
}

// Get returns a copy of the stored result for taskID.
func (s *Store) Get(taskID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[taskID]
	return r, ok
}

// Contains reports whether taskID has a recorded result.
func (s *Store) Contains(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.results[taskID]
	return ok
}

// IsSuccess reports whether taskID exists and succeeded.
func (s *Store) IsSuccess(taskID string) bool {
	r, ok := s.Get(taskID)
	return ok && r.IsSuccess()
}

// GetOutput returns the shared output value for taskID without cloning the
// underlying JSON structure.
func (s *Store) GetOutput(taskID string) (any, bool) {
	r, ok := s.Get(taskID)
	if !ok {
		return nil, false
	}
	return r.Output, true
}

// ResolvePath splits path at the first '.' into a task id and a remaining
// field path, then resolves the remainder against the shared output via
// the jsonpath helper. An empty task id or an unknown task both yield
// (nil, false); absence is distinct from a resolved JSON null.
func (s *Store) ResolvePath(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	taskID, remaining, hasRemaining := cutFirstDot(path)
	output, ok := s.GetOutput(taskID)
	if !ok {
		return nil, false
	}
	if !hasRemaining {
		return output, true
	}
	return jsonpath.Resolve(output, remaining)
}

func cutFirstDot(path string) (head, tail string, hasTail bool) {
	idx := strings.IndexByte(path, '.')
	if idx < 0 {
		return path, "", false
	}
	return path[:idx], path[idx+1:], true
}
