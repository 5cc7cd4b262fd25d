// Command segmentfeed posts demo transcription batches to a viewer started
// with --dev-ingest, so the views can be exercised without an agent.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voice-translation-viewer/internal/models"
)

var (
	target   string
	speaker  string
	interval time.Duration
	rounds   int
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cmd := &cobra.Command{
		Use:   "segmentfeed",
		Short: "Post demo segment batches to a viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			for i := 0; i < rounds; i++ {
				for _, batch := range demoBatches(speaker, time.Now()) {
					if err := post(cmd.Context(), client, batch); err != nil {
						return err
					}
					log.Info().Int("segments", len(batch)).Str("firstId", batch[0].ID).Msg("Batch sent")
					time.Sleep(interval)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "url", "http://localhost:8080/v1/segments", "viewer ingest endpoint")
	cmd.Flags().StringVar(&speaker, "speaker", "alice", "participant id stamped on the segments")
	cmd.Flags().DurationVar(&interval, "interval", 300*time.Millisecond, "pause between batches")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "number of times to replay the demo")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("segmentfeed failed")
		os.Exit(1)
	}
}

// demoBatches covers an interim followed by its final, a redelivery, a
// translation and a segment without a language.
func demoBatches(speaker string, now time.Time) [][]models.Segment {
	utterance := uuid.NewString()
	translation := uuid.NewString()
	untagged := uuid.NewString()
	ts := now.UnixMilli()

	return [][]models.Segment{
		{{ID: utterance, Text: "Good morn", Language: "en", ParticipantID: speaker, FirstReceivedTime: ts, IsFinal: models.Bool(false)}},
		{{ID: utterance, Text: "Good morning everyone", Language: "en", ParticipantID: speaker, FirstReceivedTime: ts, IsFinal: models.Bool(true)}},
		{
			{ID: utterance, Text: "Good morning everyone", Language: "en", ParticipantID: speaker, IsFinal: models.Bool(true)},
			{ID: translation, Text: "Buenos días a todos", Language: "es", ParticipantID: speaker, FirstReceivedTime: ts + 40},
		},
		{{ID: untagged, Text: "Let's get started", ParticipantID: speaker}},
	}
}

func post(ctx context.Context, client *http.Client, batch []models.Segment) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post batch: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
