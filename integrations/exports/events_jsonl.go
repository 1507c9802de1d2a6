package exports

import (
	"bytes"
	"encoding/json"
	"time"

	"sktvault/integrations/indexer"
)

type jsonlRow struct {
	Sequence    uint64            `json:"sequence"`
	Type        string            `json:"type"`
	Module      string            `json:"module"`
	Actor       string            `json:"actor,omitempty"`
	Vault       string            `json:"vault,omitempty"`
	Raffle      string            `json:"raffle,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Fingerprint string            `json:"fingerprint"`
	RecordedAt  string            `json:"recorded_at"`
}

// EventsJSONL builds a JSON Lines export of indexed events and returns the
// payload alongside its checksum.
func EventsJSONL(records []indexer.EventRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for i := range records {
		rec := &records[i]
		evt, err := rec.Event()
		if err != nil {
			return nil, "", err
		}
		row := jsonlRow{
			Sequence:    rec.Sequence,
			Type:        rec.Type,
			Module:      rec.Module,
			Actor:       rec.Actor,
			Vault:       rec.Vault,
			Raffle:      rec.Raffle,
			Attributes:  evt.Attributes,
			Fingerprint: rec.Fingerprint,
			RecordedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(row); err != nil {
			return nil, "", err
		}
	}
	return checksummed(buffer.Bytes())
}
