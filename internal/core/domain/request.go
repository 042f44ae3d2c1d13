package domain

import (
	"strings"
	"time"
)

// RequestKind tags a pending request. It travels with the request from the
// upstream response to the approve/reject call.
type RequestKind string

const (
	KindRegistration RequestKind = "registration"
	KindRoleChange   RequestKind = "role_change"
)

// ParseRequestKind accepts the wire names of both kinds.
func ParseRequestKind(s string) (RequestKind, error) {
	switch RequestKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindRegistration:
		return KindRegistration, nil
	case KindRoleChange:
		return KindRoleChange, nil
	}
	return "", ErrInvalidRequestKind
}

// RequestStatus is the lifecycle state of a request. Only pending requests
// are ever held locally; resolved ones drop out on the next refresh.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

type RequestUser struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type PracticeRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// PendingRequest is a registration or role change awaiting a decision.
type PendingRequest struct {
	ID            ID           `json:"id"`
	Kind          RequestKind  `json:"kind"`
	User          RequestUser  `json:"user"`
	RequestedRole Role         `json:"requested_role"`
	CurrentRole   Role         `json:"current_role,omitempty"`
	Practice      *PracticeRef `json:"practice,omitempty"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// Ref returns the identity used by approve/reject.
func (r PendingRequest) Ref() RequestRef {
	return RequestRef{ID: r.ID, Kind: r.Kind}
}

// RequestRef identifies a request for a mutation.
type RequestRef struct {
	ID   ID
	Kind RequestKind
}

// PendingSet is one full snapshot of the pending collections.
type PendingSet struct {
	Registrations []PendingRequest `json:"registration_requests"`
	RoleChanges   []PendingRequest `json:"role_change_requests"`
}

// Contains reports whether a request with id is pending in either collection.
func (s PendingSet) Contains(id ID) bool {
	_, ok := s.Find(RequestRef{ID: id})
	return ok
}

// Find looks a request up by id. An empty ref.Kind matches both collections.
func (s PendingSet) Find(ref RequestRef) (PendingRequest, bool) {
	for _, list := range [][]PendingRequest{s.Registrations, s.RoleChanges} {
		for _, r := range list {
			if r.ID == ref.ID && (ref.Kind == "" || r.Kind == ref.Kind) {
				return r, true
			}
		}
	}
	return PendingRequest{}, false
}

// Decision is the audit record of one approve or reject attempt.
type Decision struct {
	ID        string        `json:"id"`
	RequestID ID            `json:"request_id"`
	Kind      RequestKind   `json:"kind"`
	Outcome   RequestStatus `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	Actor     string        `json:"actor"`
	Succeeded bool          `json:"succeeded"`
	Error     string        `json:"error,omitempty"`
	DecidedAt time.Time     `json:"decided_at"`
}
