package archive

import (
	"bytes"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// envelope is the stored object layout: delivery metadata followed by the
// raw payload, which stays byte-identical to what the sender signed.
type envelope struct {
	DeliveryID string          `json:"delivery_id"`
	Event      string          `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode serializes a job to gzip-compressed JSON. The returned slice is
// owned by the caller.
func Encode(job Job) ([]byte, error) {
	env := envelope{
		DeliveryID: job.DeliveryID,
		Event:      job.Event,
		ReceivedAt: job.ReceivedAt.UTC(),
		Payload:    json.RawMessage(job.Body),
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("archive: gzip writer: %w", err)
	}

	if err := json.NewEncoder(gz).Encode(env); err != nil {
		gz.Close()
		return nil, fmt.Errorf("archive: encode envelope: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("archive: flush gzip: %w", err)
	}

	return buf.Bytes(), nil
}
