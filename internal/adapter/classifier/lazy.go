package classifier

import (
	"sync"

	"clustermatch/internal/domain"
	"clustermatch/internal/port"
)

// LoadFunc produces a model. It is called at most once per Lazy.
type LoadFunc func() (*Model, error)

// Lazy loads a model on first use. Concurrent first callers block until the
// single load finishes; its result, error included, is kept for the process.
type Lazy struct {
	load LoadFunc

	mu    sync.Mutex
	done  bool
	model *Model
	err   error
	loads int
}

var _ port.Classifier = (*Lazy)(nil)

func NewLazy(load LoadFunc) *Lazy {
	return &Lazy{load: load}
}

// NewLazyFile defers LoadFile(path) until first use.
func NewLazyFile(path string) *Lazy {
	return NewLazy(func() (*Model, error) { return LoadFile(path) })
}

// Model returns the loaded model, loading it if needed.
func (l *Lazy) Model() (*Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.done {
		l.loads++
		l.model, l.err = l.load()
		l.done = true
	}
	return l.model, l.err
}

// Classify implements port.Classifier.
func (l *Lazy) Classify(r domain.FeatureRecord) (domain.ClusterID, error) {
	m, err := l.Model()
	if err != nil {
		return "", err
	}
	return m.Classify(r)
}

// Loads reports how many times the load function ran.
func (l *Lazy) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
