package audit

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/medicrypt/recordvault/models"
	"github.com/zeebo/blake3"
)

// ledgerDomainKey separates ledger hashes from every other blake3 use in the
// service, blob references included. Changing it invalidates every stored
// chain.
var ledgerDomainKey = [32]byte{
	'r', 'e', 'c', 'o', 'r', 'd', 'v', 'a', 'u', 'l', 't', '.', 'l', 'e', 'd', 'g',
	'e', 'r', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// encMode encodes chain payloads with Core Deterministic Encoding so the same
// entry always hashes to the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: CBOR encoder initialization failed: " + err.Error())
	}
}

// chainPayload is the hashed form of an entry. The entry ID is excluded: it
// is a storage key, not ledger content.
type chainPayload struct {
	RecordID   string `cbor:"1,keyasint"`
	Seq        int64  `cbor:"2,keyasint"`
	AccessedBy string `cbor:"3,keyasint"`
	Action     string `cbor:"4,keyasint"`
	Subject    string `cbor:"5,keyasint,omitempty"`
	Timestamp  int64  `cbor:"6,keyasint"`
	PrevHash   []byte `cbor:"7,keyasint"`
}

// HashEntry computes the chain hash of entry over its content and PrevHash.
func HashEntry(entry *models.AuditEntry) ([]byte, error) {
	payload := chainPayload{
		RecordID:   entry.RecordID,
		Seq:        entry.Seq,
		AccessedBy: entry.AccessedBy,
		Action:     string(entry.Action),
		Subject:    entry.Subject,
		Timestamp:  entry.Timestamp.UnixMicro(),
		PrevHash:   append([]byte{}, entry.PrevHash...),
	}

	data, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding ledger entry: %w", err)
	}

	hasher, err := blake3.NewKeyed(ledgerDomainKey[:])
	if err != nil {
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hasher.Sum(nil), nil
}

// Seal assigns seq, PrevHash and Hash so entry extends the chain after prev.
// A nil prev starts a new chain at seq 1.
func Seal(entry *models.AuditEntry, prev *models.AuditEntry) error {
	if prev == nil {
		entry.Seq = 1
		entry.PrevHash = []byte{}
	} else {
		entry.Seq = prev.Seq + 1
		entry.PrevHash = append([]byte{}, prev.Hash...)
	}

	hash, err := HashEntry(entry)
	if err != nil {
		return err
	}
	entry.Hash = hash
	return nil
}

// Verification is the outcome of recomputing a record's chain.
type Verification struct {
	RecordID string `json:"record_id"`
	Entries  int    `json:"entries"`
	Intact   bool   `json:"intact"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Head     string `json:"head,omitempty"`
}

// VerifyChain recomputes every link of entries, which must be one record's
// ledger in seq order. BrokenAt is the first seq whose numbering, back link
// or hash does not match.
func VerifyChain(recordID string, entries []*models.AuditEntry) (*Verification, error) {
	v := &Verification{RecordID: recordID, Entries: len(entries), Intact: true}

	var prev []byte
	for i, entry := range entries {
		want := int64(i + 1)

		hash, err := HashEntry(entry)
		if err != nil {
			return nil, err
		}

		if entry.RecordID != recordID || entry.Seq != want ||
			!bytes.Equal(entry.PrevHash, prev) || !bytes.Equal(entry.Hash, hash) {
			v.Intact = false
			v.BrokenAt = want
			return v, nil
		}
		prev = entry.Hash
	}

	if len(prev) > 0 {
		v.Head = hex.EncodeToString(prev)
	}
	return v, nil
}
