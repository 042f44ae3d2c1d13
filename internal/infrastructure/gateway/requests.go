package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

type pendingResponse struct {
	Registrations []requestWire `json:"registration_requests"`
	RoleChanges   []requestWire `json:"role_change_requests"`
}

type requestWire struct {
	ID            domain.ID           `json:"id"`
	Kind          string              `json:"kind"`
	RequestType   string              `json:"request_type"`
	User          domain.RequestUser  `json:"user"`
	RequestedRole domain.Role         `json:"requested_role"`
	CurrentRole   domain.Role         `json:"current_role"`
	Practice      *domain.PracticeRef `json:"practice"`
	CreatedAt     wireTime            `json:"created_at"`
	RequestedAt   wireTime            `json:"requested_at"`
}

// toDomain tags the request. An explicit kind sent by the server wins over
// the collection the request was listed in.
func (w requestWire) toDomain(listedAs domain.RequestKind) domain.PendingRequest {
	kind := listedAs
	for _, explicit := range []string{w.Kind, w.RequestType} {
		if k, err := domain.ParseRequestKind(explicit); err == nil {
			kind = k
			break
		}
	}

	submitted := time.Time(w.CreatedAt)
	if submitted.IsZero() {
		submitted = time.Time(w.RequestedAt)
	}

	out := domain.PendingRequest{
		ID:            w.ID,
		Kind:          kind,
		User:          w.User,
		RequestedRole: w.RequestedRole,
		SubmittedAt:   submitted,
	}
	if kind == domain.KindRoleChange {
		out.CurrentRole = w.CurrentRole
	} else {
		out.Practice = w.Practice
	}
	return out
}

func (c *Client) PendingRequests(ctx context.Context) (*domain.PendingSet, error) {
	var resp pendingResponse
	if err := c.do(ctx, "pending_requests", http.MethodGet, "auth/pending_request/", nil, &resp); err != nil {
		return nil, err
	}

	set := &domain.PendingSet{
		Registrations: make([]domain.PendingRequest, 0, len(resp.Registrations)),
		RoleChanges:   make([]domain.PendingRequest, 0, len(resp.RoleChanges)),
	}
	for _, w := range resp.Registrations {
		set.Registrations = append(set.Registrations, w.toDomain(domain.KindRegistration))
	}
	for _, w := range resp.RoleChanges {
		set.RoleChanges = append(set.RoleChanges, w.toDomain(domain.KindRoleChange))
	}
	return set, nil
}

func (c *Client) Approve(ctx context.Context, ref domain.RequestRef) error {
	return c.do(ctx, "approve_request", http.MethodPost, requestPath(ref, "approve_request"), map[string]string{
		"request_type": string(ref.Kind),
	}, nil)
}

func (c *Client) Reject(ctx context.Context, ref domain.RequestRef, reason string) error {
	return c.do(ctx, "reject_request", http.MethodPost, requestPath(ref, "reject_request"), map[string]string{
		"request_type": string(ref.Kind),
		"reason":       reason,
	}, nil)
}

func requestPath(ref domain.RequestRef, action string) string {
	return "auth/" + url.PathEscape(string(ref.ID)) + "/" + action + "/"
}

// wireTime accepts the timestamp layouts the upstream API emits. An
// unparseable value decodes as the zero time rather than failing the list.
type wireTime time.Time

var wireLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || strings.TrimSpace(s) == "" {
		*t = wireTime{}
		return nil
	}
	for _, layout := range wireLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = wireTime(parsed.UTC())
			return nil
		}
	}
	*t = wireTime{}
	return nil
}
