package indexer

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"lukechampine.com/blake3"

	"sktvault/core/events"
	"sktvault/core/types"
)

// EventRecord is a committed event persisted for querying and exports.
type EventRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Session     string    `gorm:"size:36;index"`
	Sequence    uint64    `gorm:"index"`
	Type        string    `gorm:"size:64;index"`
	Module      string    `gorm:"size:32;index"`
	Actor       string    `gorm:"size:96;index"`
	Vault       string    `gorm:"size:96;index"`
	Raffle      string    `gorm:"size:96;index"`
	Fingerprint string    `gorm:"size:64;uniqueIndex"`
	Attributes  string    `gorm:"type:text"`
	CreatedAt   time.Time
}

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// actorKeys lists the attributes naming the account that triggered an event,
// in order of preference.
var actorKeys = []string{"caller", "claimer", "buyer", "owner", "from", "authority"}

// NewRecord converts a broker record into its persisted form. session
// scopes the stream sequence, which restarts with every broker.
func NewRecord(session string, rec events.Record, now time.Time) (*EventRecord, error) {
	attrs := rec.Event.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	out := &EventRecord{
		ID:          uuid.New(),
		Session:     session,
		Sequence:    rec.Sequence,
		Type:        rec.Event.Type,
		Module:      rec.Event.Module(),
		Vault:       attrs["vault"],
		Raffle:      attrs["raffle"],
		Fingerprint: Fingerprint(session, rec.Sequence, rec.Event),
		Attributes:  string(encoded),
		CreatedAt:   now.UTC(),
	}
	for _, key := range actorKeys {
		if v := attrs[key]; v != "" {
			out.Actor = v
			break
		}
	}
	return out, nil
}

// Fingerprint hashes the stream position and content of an event so
// redelivered records collapse onto one row.
func Fingerprint(session string, seq uint64, evt types.Event) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(session))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatUint(seq, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(evt.Type))
	for _, k := range evt.Keys() {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{'='})
		_, _ = h.Write([]byte(evt.Attributes[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Event decodes the stored attributes back into an event.
func (r *EventRecord) Event() (types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return types.Event{}, err
		}
	}
	return types.Event{Type: r.Type, Attributes: attrs}, nil
}
