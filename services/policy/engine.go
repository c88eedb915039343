package policy

import (
	"slices"

	"github.com/medicrypt/recordvault/models"
	"go.uber.org/zap"
)

// Action is an operation a subject asks to perform against a record.
type Action string

const (
	ActionStoreArtifact  Action = "store_artifact"
	ActionReadReport     Action = "read_report"
	ActionManageAccess   Action = "manage_access"
	ActionViewAccessList Action = "view_access_list"
	ActionViewAuditLog   Action = "view_audit_log"
	ActionAggregateQuery Action = "aggregate_query"
	ActionRequestAccess  Action = "request_access"
)

// Reason explains a denial. The zero value accompanies an allow.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonWrongRole      Reason = "wrong_role"
	ReasonNotOwner       Reason = "not_owner"
	ReasonNotGranted     Reason = "not_granted"
	ReasonRecordNotFound Reason = "record_not_found"
)

// Message returns the user-facing text for a denial reason.
func (r Reason) Message() string {
	switch r {
	case ReasonWrongRole:
		return "your role may not perform this action"
	case ReasonNotOwner:
		return "only the record owner may perform this action"
	case ReasonNotGranted:
		return "you have not been granted access to this record"
	case ReasonRecordNotFound:
		return "record not found"
	}
	return ""
}

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision carrying reason.
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Subject is the verified caller of an operation.
type Subject struct {
	Identity string
	Role     models.Role
}

// recordCheck decides the per-record part of a rule once the role matched.
type recordCheck func(sub Subject, entry *models.ACLEntry) Decision

// rule is one row of the policy table. An empty roles list admits any role.
type rule struct {
	roles []models.Role
	check recordCheck
}

// Engine is the single authority on who may do what to a record. It is pure:
// callers hand it the ACL entry they read and act on the decision.
type Engine struct {
	rules  map[Action]rule
	logger *zap.Logger
}

// NewEngine creates an engine loaded with the record access policy.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		rules:  defaultRules(),
		logger: logger,
	}
}

func defaultRules() map[Action]rule {
	patient := []models.Role{models.RolePatient}

	return map[Action]rule{
		ActionStoreArtifact: {
			roles: patient,
			check: ownerOrUnclaimed,
		},
		ActionReadReport: {
			roles: []models.Role{models.RoleDoctor, models.RolePatient},
			check: readReport,
		},
		ActionManageAccess: {
			roles: patient,
			check: ownerOnly,
		},
		ActionViewAccessList: {
			check: ownerOnly,
		},
		ActionViewAuditLog: {
			check: ownerOnly,
		},
		ActionAggregateQuery: {
			roles: []models.Role{models.RoleResearcher},
		},
		ActionRequestAccess: {
			roles: []models.Role{models.RoleDoctor},
			check: recordExists,
		},
	}
}

// Authorize decides whether sub may perform action on the record described
// by entry. A nil entry means the record does not exist yet. Unknown actions
// and roles are denied.
func (e *Engine) Authorize(sub Subject, action Action, entry *models.ACLEntry) Decision {
	r, ok := e.rules[action]
	if !ok || !sub.Role.Valid() || sub.Identity == "" {
		return e.deny(sub, action, ReasonWrongRole)
	}

	if len(r.roles) > 0 && !slices.Contains(r.roles, sub.Role) {
		return e.deny(sub, action, ReasonWrongRole)
	}

	if r.check == nil {
		return Allow()
	}

	d := r.check(sub, entry)
	if !d.Allowed {
		return e.deny(sub, action, d.Reason)
	}
	return d
}

func (e *Engine) deny(sub Subject, action Action, reason Reason) Decision {
	e.logger.Debug("authorization denied",
		zap.String("identity", sub.Identity),
		zap.String("role", string(sub.Role)),
		zap.String("action", string(action)),
		zap.String("reason", string(reason)))
	return Deny(reason)
}

// ownerOrUnclaimed admits the owner, or anyone when the record has not been
// created yet; that caller becomes the owner.
func ownerOrUnclaimed(sub Subject, entry *models.ACLEntry) Decision {
	if entry == nil || entry.IsOwner(sub.Identity) {
		return Allow()
	}
	return Deny(ReasonNotOwner)
}

func ownerOnly(sub Subject, entry *models.ACLEntry) Decision {
	if entry == nil {
		return Deny(ReasonRecordNotFound)
	}
	if !entry.IsOwner(sub.Identity) {
		return Deny(ReasonNotOwner)
	}
	return Allow()
}

// readReport lets doctors read granted records and patients read their own.
func readReport(sub Subject, entry *models.ACLEntry) Decision {
	if entry == nil {
		return Deny(ReasonRecordNotFound)
	}
	if sub.Role == models.RoleDoctor {
		if entry.IsAuthorized(sub.Identity) {
			return Allow()
		}
		return Deny(ReasonNotGranted)
	}
	return ownerOnly(sub, entry)
}

func recordExists(_ Subject, entry *models.ACLEntry) Decision {
	if entry == nil {
		return Deny(ReasonRecordNotFound)
	}
	return Allow()
}
