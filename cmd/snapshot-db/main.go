package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"nyiyui.ca/hato/heisoku/codec"
	"nyiyui.ca/hato/heisoku/store"
	"nyiyui.ca/hato/heisoku/track"
)

var dbPath string
var id string
var mode string
var comment string

func main() {
	flag.StringVar(&dbPath, "db-path", "./snapshots.db", "path to database")
	flag.StringVar(&id, "id", "", "snapshot ID to use")
	flag.StringVar(&mode, "mode", "list", "list, read, raw, write, or delete")
	flag.StringVar(&comment, "comment", "", "comment for written snapshots")
	flag.Parse()

	switch mode {
	case "list", "read", "raw", "write", "delete":
	default:
		log.Fatal("mode must be list, read, raw, write, or delete")
	}

	err := main2()
	if err != nil {
		log.Fatal(err)
	}
}

func parseID() uuid.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		log.Fatalf("id %s is not a valid UUID: %s", id, err)
	}
	return u
}

func main2() error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	switch mode {
	case "list":
		ms, err := st.List()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, m := range ms {
			err = enc.Encode(m)
			if err != nil {
				return err
			}
		}
		log.Printf("%d snapshots", len(ms))
		return nil
	case "read":
		// sections only: trains are not part of a snapshot
		m, raw, err := st.Get(parseID())
		if err != nil {
			return err
		}
		n, err := track.InitPassingLoop(track.DefaultOptions())
		if err != nil {
			return err
		}
		defer n.Close()
		err = n.Restore(codec.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		snap := n.Snapshot()
		snap.Tick = m.Tick
		log.Printf("found %s (%s)", m.ID, m.Comment)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "raw":
		_, raw, err := st.Get(parseID())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	case "write":
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		m := store.Meta{
			ID:      uuid.New(),
			Comment: comment,
			Created: time.Now(),
		}
		if id != "" {
			m.ID = parseID()
		}
		err = st.Put(m, raw)
		if err != nil {
			return err
		}
		log.Printf("saved %s", m.ID)
		return nil
	case "delete":
		return st.Delete(parseID())
	default:
		panic("not implemented yet")
	}
}
