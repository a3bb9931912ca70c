package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// UsageRecorder persists per-credential usage. store.Store implements it.
type UsageRecorder interface {
	RecordApiKeyUsage(id int64, at time.Time) error
	RecordApiKeyError(id int64, message string) error
}

// Tracked is the credential-bound client: every call updates the
// credential's persisted counters.
type Tracked struct {
	inner    RemoteClient
	keyID    int64
	recorder UsageRecorder
	now      func() time.Time
}

// NewTracked wraps inner so outcomes are recorded against keyID.
func NewTracked(inner RemoteClient, keyID int64, recorder UsageRecorder) *Tracked {
	return &Tracked{inner: inner, keyID: keyID, recorder: recorder, now: time.Now}
}

func (t *Tracked) ChatWithText(ctx context.Context, message string) (string, error) {
	text, err := t.inner.ChatWithText(ctx, message)
	t.record(err)
	return text, err
}

func (t *Tracked) ChatWithImage(ctx context.Context, message string, img Image) (string, error) {
	text, err := t.inner.ChatWithImage(ctx, message, img)
	t.record(err)
	return text, err
}

func (t *Tracked) record(callErr error) {
	if t.recorder == nil {
		return
	}
	var err error
	if callErr != nil {
		err = t.recorder.RecordApiKeyError(t.keyID, callErr.Error())
	} else {
		err = t.recorder.RecordApiKeyUsage(t.keyID, t.now())
	}
	if err != nil {
		log.Warn().Err(err).Int64("key_id", t.keyID).Msg("could not record api key usage")
	}
}
