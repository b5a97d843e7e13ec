package server

import (
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// changeSignals is pushed to SSE clients on every change ping. Clients
// re-query the endpoint named by Topic.
type changeSignals struct {
	Topic      notifier.Topic   `json:"topic"`
	Generation uint64           `json:"generation"`
	EntryID    int64            `json:"entryId,omitempty"`
	Session    core.SessionInfo `json:"session"`
}

type signalsEnvelope struct {
	PG changeSignals `json:"pg"`
}

// events is the long-lived SSE endpoint. It sends the session at once,
// then one signal patch per change ping until the client goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	updates := s.wb.Subscribe()
	defer s.wb.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)

	info := s.wb.CurrentSession()
	if err := sse.MarshalAndPatchSignals(signalsEnvelope{PG: changeSignals{
		Topic:      notifier.TopicSession,
		Generation: info.Generation,
		Session:    info,
	}}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			err := sse.MarshalAndPatchSignals(signalsEnvelope{PG: changeSignals{
				Topic:      ev.Topic,
				Generation: ev.Generation,
				EntryID:    ev.EntryID,
				Session:    s.wb.CurrentSession(),
			}})
			if err != nil {
				_ = sse.ConsoleError(err)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}
