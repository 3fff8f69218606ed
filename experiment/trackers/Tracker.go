// Package trackers implements trackers, which track and save data
// generated during an experiment
package trackers

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/latentrl/dreamer/timestep"
)

// Tracker tracks data of an experiment. Experiments send every
// environment timestep to their Trackers through Track; Save persists
// everything tracked so far to disk.
type Tracker interface {
	Track(t ts.TimeStep)
	Save() error
}

// LoadData reads back the data saved by a Tracker in the file at
// filename
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadData: could not open data file: %v",
			err)
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadData: could not decode data: %v", err)
	}
	return data, nil
}

// save encodes data to the file at filename
func save(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create data file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}
