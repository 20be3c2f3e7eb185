// Package kujo serves the reservation state live over server-sent events.
//
// Stream "events" carries every track.Event and stream "snapshot" every track.Snapshot, as JSON.
package kujo

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"nyiyui.ca/hato/heisoku/notify"
	"nyiyui.ca/hato/heisoku/track"
)

const (
	StreamEvents   = "events"
	StreamSnapshot = "snapshot"
)

type Server struct {
	s         *sse.Server
	events    *notify.Multiplexer[track.Event]
	snapshots *notify.Multiplexer[track.Snapshot]
	eventCh   chan track.Event
	snapCh    chan track.Snapshot
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewServer starts forwarding events and snapshots. Either multiplexer may be nil.
func NewServer(events *notify.Multiplexer[track.Event], snapshots *notify.Multiplexer[track.Snapshot]) *Server {
	s := &Server{
		s:         sse.New(),
		events:    events,
		snapshots: snapshots,
	}
	if events != nil {
		s.s.CreateStream(StreamEvents)
		s.eventCh = make(chan track.Event, 16)
		events.Subscribe("kujo events", s.eventCh)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			forward(s.s, StreamEvents, s.eventCh)
		}()
	}
	if snapshots != nil {
		s.s.CreateStream(StreamSnapshot)
		s.snapCh = make(chan track.Snapshot, 1)
		snapshots.Subscribe("kujo snapshot", s.snapCh)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			forward(s.s, StreamSnapshot, s.snapCh)
		}()
	}
	return s
}

func forward[E any](s *sse.Server, stream string, ch <-chan E) {
	defer s.RemoveStream(stream)
	for e := range ch {
		data, err := json.Marshal(e)
		if err != nil {
			zap.S().Errorw("marshal json",
				"stream", stream,
				"err", err)
			continue
		}
		s.TryPublish(stream, &sse.Event{
			Data: data,
		})
	}
}

// Close stops forwarding and disconnects every client.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.eventCh != nil {
			s.events.Unsubscribe(s.eventCh)
			close(s.eventCh)
		}
		if s.snapCh != nil {
			s.snapshots.Unsubscribe(s.snapCh)
			close(s.snapCh)
		}
		s.wg.Wait()
		s.s.Close()
	})
}

// ServeHTTP serves the stream named by the stream query parameter.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.s.ServeHTTP(w, r)
}
