package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ID is an upstream identifier. The API sends numbers for most records but
// strings are accepted too; IDs are always handled as strings locally.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Profile is the user record returned by the upstream login endpoint.
// Fields the portal does not read are kept in Extra and written back
// unchanged, so the stored profile matches what the upstream sent.
type Profile struct {
	ID       ID     `json:"id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`

	Extra map[string]json.RawMessage `json:"-"`
}

// profileFields has Profile's layout without its methods.
type profileFields Profile

var profileKeys = []string{"id", "username", "full_name", "email", "role"}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var f profileFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range profileKeys {
		delete(all, k)
	}
	f.Extra = nil
	if len(all) > 0 {
		f.Extra = all
	}
	*p = Profile(f)
	return nil
}

func (p Profile) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(profileFields(p))
	if err != nil || len(p.Extra) == 0 {
		return raw, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if !slices.Contains(profileKeys, k) {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Session is the client-side record of who is logged in.
// Role is always derived from User.Role.
type Session struct {
	User            *Profile `json:"user"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	Role            Role     `json:"role"`
}

// EmptySession returns the logged-out session.
func EmptySession() Session {
	return Session{}
}

// NewSession builds an authenticated session for profile.
func NewSession(profile Profile) Session {
	p := profile
	return Session{
		User:            &p,
		IsAuthenticated: true,
		Role:            p.Role,
	}
}

// Consistent reports whether the session satisfies
// IsAuthenticated == (User != nil) and Role == User.Role.
func (s Session) Consistent() bool {
	if s.IsAuthenticated != (s.User != nil) {
		return false
	}
	if s.User == nil {
		return s.Role == ""
	}
	return s.Role == s.User.Role
}

// EffectiveRole is the role used for routing decisions. A stale or
// inconsistent session counts as having no role.
func (s Session) EffectiveRole() Role {
	if !s.IsAuthenticated || !s.Consistent() {
		return ""
	}
	return s.Role
}
