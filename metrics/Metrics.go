// Package metrics implements scalar metric sinks for training runs.
// The training code only needs a Log call taking a map of named
// scalars and the step they were measured at; sinks decide how to
// display or persist them.
package metrics

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"

	"github.com/gosuri/uilive"
)

// Logger receives scalar metrics during training
type Logger interface {
	Log(scalars map[string]float64, step int)
	Close() error
}

// Console displays the latest value of every metric in place on the
// terminal. Values logged at different steps are merged, so the
// display always shows the most recent value of every metric seen so
// far.
type Console struct {
	writer *uilive.Writer
	latest map[string]float64
	step   int
}

// NewConsole returns a console sink writing to stdout
func NewConsole() *Console {
	writer := uilive.New()
	writer.Start()
	return &Console{
		writer: writer,
		latest: make(map[string]float64),
	}
}

// Log merges the scalars into the display and repaints it
func (c *Console) Log(scalars map[string]float64, step int) {
	c.step = step
	for name, value := range scalars {
		c.latest[name] = value
	}

	names := make([]string, 0, len(c.latest))
	for name := range c.latest {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(c.writer, "step %d\n", c.step)
	for _, name := range names {
		fmt.Fprintf(c.writer, "  %-24s %12.6f\n", name, c.latest[name])
	}
	c.writer.Flush()
}

// Close stops repainting, leaving the final display on the terminal
func (c *Console) Close() error {
	c.writer.Stop()
	return nil
}

// record is one logged measurement in a metric file
type record struct {
	Step    int
	Scalars map[string]float64
}

// File appends every logged measurement to a gob-encoded file
type File struct {
	file *os.File
	enc  *gob.Encoder
}

// NewFile returns a file sink writing to the file at path, truncating
// any existing file
func NewFile(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("newFile: could not create metric "+
			"file: %v", err)
	}
	return &File{file: f, enc: gob.NewEncoder(f)}, nil
}

// Log appends the scalars to the file. Encoding failures are dropped;
// metric persistence is best-effort and never interrupts training.
func (f *File) Log(scalars map[string]float64, step int) {
	_ = f.enc.Encode(record{Step: step, Scalars: scalars})
}

// Close closes the underlying file
func (f *File) Close() error {
	return f.file.Close()
}

// LoadFile reads back every measurement in a metric file written by a
// File sink, returning the steps and scalars in logged order.
func LoadFile(path string) ([]int, []map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loadFile: could not open metric "+
			"file: %v", err)
	}
	defer f.Close()

	var steps []int
	var scalars []map[string]float64
	dec := gob.NewDecoder(f)
	for {
		var r record
		if err := dec.Decode(&r); err != nil {
			break
		}
		steps = append(steps, r.Step)
		scalars = append(scalars, r.Scalars)
	}
	return steps, scalars, nil
}

// Multi fans every measurement out to multiple sinks
type Multi struct {
	sinks []Logger
}

// NewMulti returns a sink forwarding to every given sink
func NewMulti(sinks ...Logger) *Multi {
	return &Multi{sinks: sinks}
}

// Log forwards the scalars to every sink
func (m *Multi) Log(scalars map[string]float64, step int) {
	for _, s := range m.sinks {
		s.Log(scalars, step)
	}
}

// Close closes every sink, returning the first error encountered
func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards every measurement
type Nop struct{}

func (Nop) Log(map[string]float64, int) {}
func (Nop) Close() error                { return nil }
