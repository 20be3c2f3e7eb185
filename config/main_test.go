package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/heisoku/track"
)

const form = "2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91"

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte(`{"track": {"location-passing-paths": true}}`))
	if err != nil {
		t.Fatal(err)
	}
	want := track.DefaultOptions()
	want.LocationPassingPaths = true
	if !cmp.Equal(c.Track, want) {
		t.Fatalf("diff: %s", cmp.Diff(want, c.Track))
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"db-path": "snapshots.db",
		"cars": {"forms": {"` + form + `": {"length": 120}}},
		"trains": [
			{"number": 1, "name": "east", "form": "` + form + `", "speed": 10},
			{"number": 2, "name": "west", "form": "` + form + `", "direction": 1, "loop": true, "speed": 8, "start": 3}
		]
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "snapshots.db" {
		t.Fatalf("db path %s", c.DBPath)
	}
	want := []Train{
		{Number: 1, Name: "east", Speed: 10},
		{Number: 2, Name: "west", Direction: 1, Loop: true, Speed: 8, Start: 3},
	}
	for i := range want {
		want[i].Form = c.Trains[0].Form
	}
	if !cmp.Equal(c.Trains, want) {
		t.Fatalf("diff: %s", cmp.Diff(want, c.Trains))
	}
}

func TestInvalid(t *testing.T) {
	type setup struct {
		name string
		data string
	}
	for _, s := range []setup{
		{"unknown field", `{"overlap": 3}`},
		{"negative overlap", `{"track": {"standard-overlap": -1}}`},
		{"unknown form", `{"trains": [{"number": 1, "form": "` + form + `", "speed": 1}]}`},
		{"duplicate", `{"cars": {"forms": {"` + form + `": {"length": 1}}}, "trains": [{"number": 1, "form": "` + form + `", "speed": 1}, {"number": 1, "form": "` + form + `", "speed": 1}]}`},
		{"no speed", `{"cars": {"forms": {"` + form + `": {"length": 1}}}, "trains": [{"number": 1, "form": "` + form + `"}]}`},
	} {
		t.Run(s.name, func(t *testing.T) {
			if _, err := Parse([]byte(s.data)); err == nil {
				t.Fatal("no error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file loaded")
	}
}
