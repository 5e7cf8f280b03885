package gridshift

import (
	_ "embed"
	"sync"
)

// demoBlob is the bundled demonstration dataset: a 23x27 patch of the 1 km
// national grid (metres, 701x1251 nodes) around node (651, 313), with a
// four-node hole at columns 655-656, rows 320-321. Its source is
// data/demo.csv; rebuild with `gridshift build`.
//
//go:embed data/demo.gsb
var demoBlob []byte

// Lazy loads a dataset blob the first time it is asked for an engine.
// Concurrent first callers wait for the single load and all observe the same
// engine, or the same *DatasetLoadError.
type Lazy struct {
	blob []byte
	opts []Option

	once sync.Once
	eng  *Engine
	err  error
}

// NewLazy returns a Lazy over blob. blob must not be modified afterwards.
func NewLazy(blob []byte, opts ...Option) *Lazy {
	return &Lazy{blob: blob, opts: opts}
}

// Engine loads the dataset on first use and returns the cached result.
// A failed load is not retried.
func (l *Lazy) Engine() (*Engine, error) {
	l.once.Do(func() {
		l.eng, l.err = Load(l.blob, l.opts...)
	})
	return l.eng, l.err
}

var demo = NewLazy(demoBlob)

// Default returns the engine over the bundled demonstration dataset.
func Default() (*Engine, error) { return demo.Engine() }

// DemoDataset returns a copy of the bundled dataset blob.
func DemoDataset() []byte { return append([]byte(nil), demoBlob...) }
