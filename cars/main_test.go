package cars

import (
	_ "embed"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

//go:embed test.json
var testJson []byte

func TestCarsJSON(t *testing.T) {
	var data Data
	err := json.Unmarshal(testJson, &data)
	if err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	testJson2, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	var data2 Data
	err = json.Unmarshal(testJson2, &data2)
	if err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if !cmp.Equal(data, data2) {
		t.Fatalf("diff: %s", cmp.Diff(data, data2))
	}
}

func TestTrainLength(t *testing.T) {
	var data Data
	err := json.Unmarshal(testJson, &data)
	if err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	type setup struct {
		id     string
		length float64
	}
	for _, s := range []setup{
		{"2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91", 82.5},
		{"8c0f4a9e-51d2-4c4b-9d0e-3f7a2b61c5d8", 198.5},
	} {
		t.Run(s.id, func(t *testing.T) {
			f, ok := data.Lookup(uuid.MustParse(s.id))
			if !ok {
				t.Fatal("form not found")
			}
			if got := f.TrainLength(); got != s.length {
				t.Fatalf("length %g", got)
			}
		})
	}
	if _, ok := data.Lookup(uuid.New()); ok {
		t.Fatal("found unknown form")
	}
}

func TestInvalid(t *testing.T) {
	for _, s := range []string{
		`{"forms": {"nope": {"length": 10}}}`,
		`{"forms": {"2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91": {}}}`,
		`{"forms": {"2fe1cbb0-b584-45f5-96ec-a9bfd55b1e91": {"cars": [{"length": -1}]}}}`,
	} {
		var data Data
		if err := json.Unmarshal([]byte(s), &data); err == nil {
			t.Fatalf("%s: no error", s)
		}
	}
}
