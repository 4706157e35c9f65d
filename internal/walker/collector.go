package walker

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/repodescribe/internal/annotate"
)

// FailureKind classifies an isolated failure.
type FailureKind string

const (
	FailureListing   FailureKind = "listing"
	FailureRetrieval FailureKind = "retrieval"
	FailureAnalysis  FailureKind = "analysis"
)

// Failure is one node that contributed nothing to the result.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Name       string      `json:"name"`
	Path       string      `json:"path"`
	ChunkIndex int         `json:"chunk_index,omitempty"`
	Err        error       `json:"-"`
}

func (f Failure) String() string {
	if f.Kind == FailureAnalysis {
		return fmt.Sprintf("%s %s#%d: %v", f.Kind, f.Path, f.ChunkIndex, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Kind, f.Path, f.Err)
}

// MarshalJSON renders Err as a string.
func (f Failure) MarshalJSON() ([]byte, error) {
	type plain Failure
	var msg string
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(f), msg})
}

// Stats counts what a walk touched.
type Stats struct {
	Directories int `json:"directories"`
	Files       int `json:"files"`
	Filtered    int `json:"filtered"`
	Chunks      int `json:"chunks"`
	Annotated   int `json:"annotated"`
	Failed      int `json:"failed"`
}

// AnnotationSet collects annotations and failures from concurrent tasks.
// Writers append under a mutex; readers get copies.
type AnnotationSet struct {
	mu          sync.Mutex
	annotations []annotate.Annotation
	failures    []Failure

	dirs     atomic.Int64
	files    atomic.Int64
	filtered atomic.Int64
	chunks   atomic.Int64
}

// NewAnnotationSet returns an empty set.
func NewAnnotationSet() *AnnotationSet {
	return &AnnotationSet{}
}

func (s *AnnotationSet) add(a annotate.Annotation) {
	s.mu.Lock()
	s.annotations = append(s.annotations, a)
	s.mu.Unlock()
}

func (s *AnnotationSet) fail(f Failure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

// Annotations returns a copy of the collected annotations in completion order.
func (s *AnnotationSet) Annotations() []annotate.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]annotate.Annotation, len(s.annotations))
	copy(out, s.annotations)
	return out
}

// Failures returns a copy of the failure log.
func (s *AnnotationSet) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Len is the number of annotations.
func (s *AnnotationSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.annotations)
}

// Stats snapshots the walk counters.
func (s *AnnotationSet) Stats() Stats {
	s.mu.Lock()
	annotated, failed := len(s.annotations), len(s.failures)
	s.mu.Unlock()
	return Stats{
		Directories: int(s.dirs.Load()),
		Files:       int(s.files.Load()),
		Filtered:    int(s.filtered.Load()),
		Chunks:      int(s.chunks.Load()),
		Annotated:   annotated,
		Failed:      failed,
	}
}
