package models

import (
	"slices"
	"time"
)

// ACLEntry is the access control entry of a single record. The owner never
// changes after creation; AllowedWallets is a set kept in grant order.
type ACLEntry struct {
	RecordID       string    `json:"record_id" db:"record_id"`
	Owner          string    `json:"owner" db:"owner"`
	AllowedWallets []string  `json:"allowed_wallets" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ACLEntry model
func (ACLEntry) TableName() string {
	return "acl_entries"
}

// NewACLEntry creates an entry with an empty grant set.
func NewACLEntry(recordID, owner string, at time.Time) *ACLEntry {
	return &ACLEntry{
		RecordID:       recordID,
		Owner:          owner,
		AllowedWallets: []string{},
		CreatedAt:      at,
	}
}

// IsOwner reports whether identity owns the record.
func (e *ACLEntry) IsOwner(identity string) bool {
	return e != nil && identity != "" && e.Owner == identity
}

// HasGrant reports whether identity is in the grant set.
func (e *ACLEntry) HasGrant(identity string) bool {
	if e == nil {
		return false
	}
	return slices.Contains(e.AllowedWallets, identity)
}

// IsAuthorized reports whether identity is the owner or holds a grant.
func (e *ACLEntry) IsAuthorized(identity string) bool {
	return e.IsOwner(identity) || e.HasGrant(identity)
}

// Clone returns a deep copy of the entry.
func (e *ACLEntry) Clone() *ACLEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.AllowedWallets = slices.Clone(e.AllowedWallets)
	if out.AllowedWallets == nil {
		out.AllowedWallets = []string{}
	}
	return &out
}
