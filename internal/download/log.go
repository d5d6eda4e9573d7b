package download

import (
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/pubsub"
)

// LogEvents logs every event from events until the stream ends, including a field-by-field diff for updates.
func LogEvents(events pubsub.Receiver[Event], logger *zap.Logger) {
	log := logger.Sugar()
	for event := range events.Receive() {
		session := event.Session()
		log.Debugf("event: %T: %v", event, session)
		switch e := event.(type) {
		case SessionUpdated:
			changes, err := diff.Diff(e.Old, session)
			if err != nil {
				log.Errorf("failed to diff old and new session state: %v", err)
				continue
			}
			for _, change := range changes {
				log.Debugf("%s %v: %#v -> %#v", session.ID, change.Path, change.From, change.To)
			}
		case SessionFailed:
			log.Warnf("download %s failed: %s", session.SuggestedName, e.Reason)
		}
	}
}
