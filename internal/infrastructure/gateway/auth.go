package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login posts the credentials; the upstream session cookie lands in the
// client's jar. The profile is either the body itself or its "user" field.
func (c *Client) Login(ctx context.Context, creds ports.Credentials) (*domain.Profile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "login", http.MethodPost, "auth/login/", loginRequest{
		Username: creds.Username,
		Password: creds.Password,
	}, &raw); err != nil {
		return nil, err
	}

	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, &domain.GatewayError{Op: "login", Status: http.StatusOK, Err: err}
	}
	if profile.Role == "" {
		var nested struct {
			User *domain.Profile `json:"user"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.User != nil {
			profile = *nested.User
		}
	}
	if profile.Role == "" {
		return nil, &domain.GatewayError{Op: "login", Status: http.StatusOK, Err: fmt.Errorf("login response carries no role")}
	}
	return &profile, nil
}

type signupRequest struct {
	Username          string  `json:"username"`
	FullName          string  `json:"full_name"`
	Email             string  `json:"email"`
	Password          string  `json:"password"`
	DesiredPracticeID *string `json:"desired_practice_id"`
}

// Signup primes the CSRF cookie, then files the registration.
func (c *Client) Signup(ctx context.Context, in ports.SignupInput) error {
	if err := c.do(ctx, "csrf", http.MethodGet, "auth/get_csrf_token/", nil, nil); err != nil {
		return err
	}
	req := signupRequest{
		Username: in.Username,
		FullName: in.FullName,
		Email:    in.Email,
		Password: in.Password,
	}
	if in.DesiredPracticeID != "" {
		id := in.DesiredPracticeID
		req.DesiredPracticeID = &id
	}
	return c.do(ctx, "signup", http.MethodPost, "auth/signup/", req, nil)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.do(ctx, "change_password", http.MethodPost, "auth/change_password/", map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}, nil)
}

func (c *Client) RequestRoleChange(ctx context.Context, in ports.RoleChangeInput) error {
	body := map[string]string{"requested_role": string(in.RequestedRole)}
	if in.Reason != "" {
		body["reason"] = in.Reason
	}
	return c.do(ctx, "request_role_change", http.MethodPost, "auth/request_role_change/", body, nil)
}
