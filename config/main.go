package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"nyiyui.ca/hato/heisoku/cars"
	"nyiyui.ca/hato/heisoku/track"
)

type Config struct {
	Track track.Options `json:"track"`
	// DBPath is the snapshot database. Empty disables snapshots.
	DBPath string `json:"db-path"`
	// SnapshotEvery saves a snapshot every this many ticks, if positive.
	SnapshotEvery int `json:"snapshot-every"`
	// Listen is the address the live view is served on. Empty disables it.
	Listen string    `json:"listen"`
	Cars   cars.Data `json:"cars"`
	Trains []Train   `json:"trains"`
}

// Train places a train on the passing loop testbench.
type Train struct {
	Number int       `json:"number"`
	Name   string    `json:"name"`
	Form   uuid.UUID `json:"form"`
	// Direction is 0 for eastbound (a to b), 1 for westbound.
	Direction int  `json:"direction"`
	Loop      bool `json:"loop"`
	// Speed in m per tick.
	Speed float64 `json:"speed"`
	// Start is the tick the train departs on.
	Start int `json:"start"`
}

func Default() Config {
	return Config{
		Track:         track.DefaultOptions(),
		DBPath:        "",
		SnapshotEvery: 0,
		Listen:        "",
		Cars:          cars.Data{Forms: map[uuid.UUID]cars.Form{}},
	}
}

// Load reads the config at path. Fields not in the file keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	c := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(&c)
	if err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	err = c.Validate()
	if err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Track.StandardOverlap < 0 || c.Track.JunctionOverlap < 0 {
		return fmt.Errorf("overlaps must not be negative")
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot-every must not be negative")
	}
	seen := map[int]bool{}
	for i, t := range c.Trains {
		if seen[t.Number] {
			return fmt.Errorf("train %d: duplicate number %d", i, t.Number)
		}
		seen[t.Number] = true
		if t.Direction != 0 && t.Direction != 1 {
			return fmt.Errorf("train %d: invalid direction %d", t.Number, t.Direction)
		}
		if t.Speed <= 0 {
			return fmt.Errorf("train %d: speed must be positive", t.Number)
		}
		if _, ok := c.Cars.Lookup(t.Form); !ok {
			return fmt.Errorf("train %d: unknown form %s", t.Number, t.Form)
		}
	}
	return nil
}
