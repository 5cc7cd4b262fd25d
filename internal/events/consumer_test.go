package events

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"voice-translation-viewer/internal/models"
)

type fakeReader struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		if f.err != nil {
			return kafka.Message{}, f.err
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		room     string
		segments int
		wantErr  bool
	}{
		{"envelope", `{"room":"r1","segments":[{"id":"1","text":"hi"}]}`, "r1", 1, false},
		{"bare array", `[{"id":"1","text":"hi"},{"id":"2","text":"yo"}]`, "", 2, false},
		{"malformed", `{"room":`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := DecodeBatch([]byte(tt.value))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if batch.Room != tt.room || len(batch.Segments) != tt.segments {
				t.Errorf("expected room %q with %d segments, got %+v", tt.room, tt.segments, batch)
			}
		})
	}
}

func TestConsumer_DeliversInOrder(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Value: []byte(`{"room":"r1","segments":[{"id":"1","text":"a"}]}`)},
		{Value: []byte(`not json`)},
		{Value: []byte(`{"room":"other","segments":[{"id":"9","text":"x"}]}`)},
		{Value: []byte(`{"room":"r1","segments":[{"id":"2","text":"b"}]}`)},
	}}
	c := newConsumer(reader, "viewer.segments", "r1")
	ctx, cancel := context.WithCancel(context.Background())

	var got []string
	err := c.Run(ctx, func(batch []models.Segment) error {
		for _, s := range batch {
			got = append(got, s.ID)
		}
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("expected [1 2], got %v", got)
	}
	if !reader.closed {
		t.Error("expected reader to be closed")
	}
}

func TestConsumer_ReadError(t *testing.T) {
	boom := errors.New("broker gone")
	c := newConsumer(&fakeReader{err: boom}, "t", "")

	err := c.Run(context.Background(), func([]models.Segment) error { return nil })

	if !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestNewConsumer_Disabled(t *testing.T) {
	if c := NewConsumer(&Config{Enabled: true, Brokers: []string{"b"}}, "r"); c != nil {
		t.Error("expected nil consumer without a consume topic")
	}
	if c := NewConsumer(nil, "r"); c != nil {
		t.Error("expected nil consumer for nil config")
	}
}
