// Package cars describes train formations, which give trains their lengths.
package cars

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Data struct {
	Forms map[uuid.UUID]Form `json:"forms"` // json struct tag isn't actually used but kept for docs purposes
}

type dataJSON struct {
	Forms map[string]Form `json:"forms"`
}

func (d Data) MarshalJSON() ([]byte, error) {
	d3 := dataJSON{Forms: map[string]Form{}}
	for key, f := range d.Forms {
		d3.Forms[key.String()] = f
	}
	return json.Marshal(d3)
}

func (d *Data) UnmarshalJSON(data []byte) error {
	var d3 dataJSON
	err := json.Unmarshal(data, &d3)
	if err != nil {
		return err
	}
	d2 := Data{Forms: map[uuid.UUID]Form{}}
	for key, f := range d3.Forms {
		u2, err := uuid.Parse(key)
		if err != nil {
			return fmt.Errorf("key %s: parse key as UUID: %w", key, err)
		}
		err = f.validate()
		if err != nil {
			return fmt.Errorf("form %s: %w", key, err)
		}
		d2.Forms[u2] = f
	}
	*d = d2
	return nil
}

// Lookup returns the form with the given id.
func (d Data) Lookup(id uuid.UUID) (Form, bool) {
	f, ok := d.Forms[id]
	return f, ok
}

// Form represents a single formation.
type Form struct {
	Comment string `json:"comment"`
	// Length of the whole formation in m.
	// This may not be the sum of the cars' individual lengths due to couplers, etc.
	// If zero, the sum is used.
	Length float64 `json:"length"`
	// Cars is the list of cars in this formation, from the front.
	Cars []Car `json:"cars"`
}

type Car struct {
	Comment string `json:"comment"`
	// Length of the car in m.
	Length float64 `json:"length"`
}

func (f Form) validate() error {
	if f.Length < 0 {
		return fmt.Errorf("negative length %g", f.Length)
	}
	for i, c := range f.Cars {
		if c.Length <= 0 {
			return fmt.Errorf("car %d (%s): length must be positive", i, c.Comment)
		}
	}
	if f.TrainLength() == 0 {
		return fmt.Errorf("no length and no cars")
	}
	return nil
}

// TrainLength is the length a train of this formation occupies.
func (f Form) TrainLength() float64 {
	if f.Length > 0 {
		return f.Length
	}
	var sum float64
	for _, c := range f.Cars {
		sum += c.Length
	}
	return sum
}
