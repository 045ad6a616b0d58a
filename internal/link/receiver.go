package link

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/draftwire/draftwire/internal/protocol"
)

// receive is the inbound half: it blocks on the next newline-delimited
// message, decodes and dispatches it, and isolates every per-message
// failure. A malformed or semantically invalid line is logged with the
// raw message and dropped; only end-of-stream or a connection error ends
// the loop.
func (l *Link) receive(ctx context.Context) {
	l.state.Store(int32(StateStreaming))
	log.Info().Str("remote", l.conn.RemoteAddr().String()).Msg("receiver streaming")

	scanner := bufio.NewScanner(l.conn)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			log.Warn().Err(err).Str("raw", line).Msg("dropping undecodable message")
			continue
		}

		if err := l.dispatcher.Dispatch(msg); err != nil {
			log.Warn().
				Err(err).
				Str("command", msg.Command).
				Str("raw", line).
				Msg("dropping unhandled message")
			continue
		}

		log.Debug().Str("command", msg.Command).Msg("message applied")
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		log.Error().Err(err).Msg("connection read failed")
	} else {
		log.Info().Msg("connection closed by server")
	}
	l.shutdown()
}
