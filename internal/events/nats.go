package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/models"
)

// NATSPublisher publishes each update as JSON on a subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transdoc"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Notify(update models.ProgressUpdate) {
	b, err := json.Marshal(update)
	if err != nil {
		log.Error().Err(err).Msg("could not encode progress update")
		return
	}
	if err := p.nc.Publish(p.subject, b); err != nil {
		log.Warn().Err(err).Str("subject", p.subject).Int64("job_id", update.JobID).Msg("nats publish failed")
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
