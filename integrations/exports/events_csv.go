package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"strconv"
	"time"

	"sktvault/integrations/indexer"
)

var csvHeader = []string{"sequence", "type", "module", "actor", "vault", "raffle", "attributes", "fingerprint", "recorded_at"}

// EventsCSV builds a CSV export for the supplied indexed events and returns
// the serialised data alongside a SHA-256 checksum of the payload.
func EventsCSV(records []indexer.EventRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatUint(rec.Sequence, 10),
			rec.Type,
			rec.Module,
			rec.Actor,
			rec.Vault,
			rec.Raffle,
			rec.Attributes,
			rec.Fingerprint,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return checksummed(buffer.Bytes())
}

func checksummed(data []byte) ([]byte, string, error) {
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}
