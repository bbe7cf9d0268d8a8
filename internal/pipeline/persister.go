package pipeline

import (
	"log/slog"

	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/events"
)

// persister writes captions and their finalized translations to the store.
// It runs on its own queue goroutine.
type persister struct {
	store Store
	log   *slog.Logger
}

func (p *persister) Emit(ev events.Event) {
	switch ev.Kind {
	case events.SentenceFinalized:
		if ev.SessionID == "" {
			return
		}
		err := p.store.InsertCaption(db.Caption{
			ID:             ev.CaptionID,
			SessionID:      ev.SessionID,
			Text:           ev.Text,
			SequenceNumber: ev.Sequence,
			CreatedAt:      ev.Time,
		})
		if err != nil {
			p.log.Warn("persist caption", "caption_id", ev.CaptionID, "error", err)
		}
	case events.FinalizedTranslationComplete:
		if err := p.store.SetTranslation(ev.CaptionID, ev.Text); err != nil {
			p.log.Warn("persist translation", "caption_id", ev.CaptionID, "error", err)
		}
	case events.StatusChanged:
		if ev.Recording != nil && !*ev.Recording && ev.SessionID != "" {
			if err := p.store.EndSession(ev.SessionID); err != nil {
				p.log.Warn("end session", "session_id", ev.SessionID, "error", err)
			}
		}
	}
}
