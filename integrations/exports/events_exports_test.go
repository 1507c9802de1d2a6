package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sktvault/integrations/indexer"
)

func sampleRecords() []indexer.EventRecord {
	return []indexer.EventRecord{
		{
			Sequence:    1,
			Type:        "custody.claim",
			Module:      "custody",
			Actor:       "skt1claimer",
			Vault:       "skt1vault",
			Attributes:  `{"amount":"100","claimer":"skt1claimer","vault":"skt1vault"}`,
			Fingerprint: "abc",
			CreatedAt:   time.Unix(1700, 0).UTC(),
		},
		{
			Sequence:    2,
			Type:        "raffle.buy",
			Module:      "raffle",
			Actor:       "skt1buyer",
			Raffle:      "skt1raffle",
			Attributes:  `{"amount":"3"}`,
			Fingerprint: "def",
			CreatedAt:   time.Unix(1701, 0).UTC(),
		},
	}
}

func TestEventsCSV(t *testing.T) {
	data, checksum, err := EventsCSV(sampleRecords())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,custody.claim,custody,skt1claimer,skt1vault,,") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestEventsJSONL(t *testing.T) {
	data, checksum, err := EventsJSONL(sampleRecords())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	output := string(data)
	if !strings.Contains(output, `"attributes":{"amount":"100","claimer":"skt1claimer","vault":"skt1vault"}`) {
		t.Fatalf("attributes not embedded: %s", output)
	}
	if strings.Count(output, "\n") != 2 {
		t.Fatalf("expected two lines: %s", output)
	}
	if strings.Contains(strings.SplitN(output, "\n", 2)[0], `"raffle"`) {
		t.Fatalf("empty raffle must be omitted")
	}
}

func TestEventsParquet(t *testing.T) {
	data, checksum, err := EventsParquet(sampleRecords())
	if err != nil {
		t.Fatalf("parquet: %v", err)
	}
	if len(checksum) != 64 {
		t.Fatalf("unexpected checksum %q", checksum)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("missing parquet magic")
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, checksum, err := WriteFile(dir, "events", FormatCSV, sampleRecords())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "events.csv" {
		t.Fatalf("unexpected path %s", path)
	}
	sidecar, err := os.ReadFile(path + ".sha256")
	if err != nil {
		t.Fatalf("read checksum: %v", err)
	}
	if !strings.HasPrefix(string(sidecar), checksum+"  events.csv") {
		t.Fatalf("unexpected sidecar %q", sidecar)
	}
	if _, _, err := WriteFile(dir, "events", Format("xml"), nil); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
