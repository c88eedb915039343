package models

import (
	"time"

	"github.com/google/uuid"
)

// Record is a patient's medical record. Its owner is fixed by the first
// successful artifact upload.
type Record struct {
	ID        string      `json:"record_id" db:"id"`
	Owner     string      `json:"owner" db:"owner"`
	Artifacts []*Artifact `json:"artifacts" db:"-"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Record model
func (Record) TableName() string {
	return "records"
}

// NewRecord creates a record owned by owner.
func NewRecord(id, owner string, at time.Time) *Record {
	return &Record{
		ID:        id,
		Owner:     owner,
		Artifacts: []*Artifact{},
		CreatedAt: at,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Artifacts = make([]*Artifact, len(r.Artifacts))
	for i, a := range r.Artifacts {
		cp := *a
		out.Artifacts[i] = &cp
	}
	return &out
}

// Artifact is an opaque reference to sealed content in the blob store.
type Artifact struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RecordID   string    `json:"record_id" db:"record_id"`
	Reference  string    `json:"reference" db:"reference"`
	Size       int64     `json:"size" db:"size"`
	UploadedBy string    `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// TableName returns the table name for the Artifact model
func (Artifact) TableName() string {
	return "artifacts"
}

// NewArtifact creates a new Artifact instance
func NewArtifact(recordID, reference, uploadedBy string, size int64, at time.Time) *Artifact {
	return &Artifact{
		ID:         uuid.New(),
		RecordID:   recordID,
		Reference:  reference,
		Size:       size,
		UploadedBy: uploadedBy,
		UploadedAt: at,
	}
}
