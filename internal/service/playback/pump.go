package playback

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// PacketSource yields RTP packets from a subscribed track.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// Pump copies packets from src into every sink returned by sinks until the
// source ends or ctx is cancelled. sinks is called per packet so attachments
// may change while the pump runs. Empty payloads (DTX) are skipped.
func Pump(ctx context.Context, src PacketSource, sinks func() []Sink, logger zerolog.Logger) error {
	packets := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Debug().Int("packets", packets).Msg("Playback pump finished")
				return nil
			}
			return err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		packets++
		if packets == 1 {
			logger.Info().Uint32("ssrc", pkt.SSRC).Msg("First RTP packet received")
		}
		for _, sink := range sinks() {
			if err := sink.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Msg("Playback sink write failed")
			}
		}
	}
}
