package link

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/protocol"
)

// send is the outbound half: it blocks until a queued message or the stop
// signal arrives and writes each message through the codec. A bid is
// marked processed only after its write succeeds; a failed write leaves
// the bid unprocessed and the loop moves on to the next message. Failed
// writes are never retried.
func (l *Link) send(ctx context.Context) {
	log.Info().Msg("sender started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sender stopped")
			return
		case msg := <-l.outbound:
			l.write(msg)
		}
	}
}

func (l *Link) write(msg Outbound) {
	line, err := protocol.Encode(msg.Command, msg.Fields)
	if err != nil {
		log.Error().Err(err).Str("command", msg.Command).Msg("dropping unencodable outbound message")
		return
	}

	if _, err := l.conn.Write([]byte(line)); err != nil {
		log.Error().
			Err(err).
			Str("command", msg.Command).
			Msg("failed to write outbound message")
		return
	}

	if msg.BidID != uuid.Nil {
		if err := l.store.MarkBidProcessed(msg.BidID); err != nil {
			log.Error().Err(err).Str("bid_id", msg.BidID.String()).Msg("failed to mark bid processed")
			return
		}
	}

	log.Debug().Str("command", msg.Command).Msg("outbound message sent")
}
