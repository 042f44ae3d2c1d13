package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

// AuthService implements login, logout and the account requests of one
// client scope on top of the upstream gateway.
type AuthService struct {
	gateway  ports.Gateway
	sessions *SessionService
	notify   ports.Notifier
	log      zerolog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(gateway ports.Gateway, sessions *SessionService, notify ports.Notifier, log zerolog.Logger) *AuthService {
	return &AuthService{gateway: gateway, sessions: sessions, notify: notify, log: log}
}

// Login authenticates upstream, stores the session and returns it together
// with the role's home path. The session is untouched on failure.
func (s *AuthService) Login(ctx context.Context, creds ports.Credentials) (domain.Session, string, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return domain.Session{}, "", domain.ErrInvalidCredentials
	}

	profile, err := s.gateway.Login(ctx, creds)
	if err != nil {
		s.log.Info().Err(err).Str("username", creds.Username).Msg("login rejected")
		s.notify.Error(domain.UserMessage(err, "Login failed"))
		return domain.Session{}, "", err
	}

	sess := s.sessions.Set(ctx, *profile)
	s.notify.Success("Login successful!")
	s.log.Info().Str("username", creds.Username).Str("role", string(sess.Role)).Msg("logged in")
	return sess, domain.HomePath(sess.Role), nil
}

// Logout is local only: the upstream is not called, the scope just
// forgets its upstream cookies.
func (s *AuthService) Logout(ctx context.Context) {
	s.sessions.Clear(ctx)
	s.resetUpstream(ctx)
}

// Expire ends a session the upstream no longer recognizes, so the next
// navigation is routed to the landing page.
func (s *AuthService) Expire(ctx context.Context) {
	if !s.sessions.Get().IsAuthenticated {
		return
	}
	s.log.Info().Msg("upstream session lost, logging out")
	s.sessions.Clear(ctx)
	s.resetUpstream(ctx)
	s.notify.Error("Your session has expired. Please log in again.")
}

func (s *AuthService) resetUpstream(ctx context.Context) {
	r, ok := s.gateway.(ports.SessionResetter)
	if !ok {
		return
	}
	if err := r.ResetSession(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to reset upstream session")
	}
}

// failed reports err for an authenticated call. A lost upstream session
// expires the local one and surfaces as ErrSessionExpired.
func (s *AuthService) failed(ctx context.Context, err error, fallback string) error {
	if domain.SessionLost(err) {
		s.Expire(ctx)
		return fmt.Errorf("%w: %w", domain.ErrSessionExpired, err)
	}
	s.notify.Error(domain.UserMessage(err, fallback))
	return err
}

func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) error {
	if err := s.gateway.Signup(ctx, in); err != nil {
		s.notify.Error(domain.UserMessage(err, "Signup failed"))
		return err
	}
	s.notify.Success("Signup successful! Please log in.")
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if !s.sessions.Get().IsAuthenticated {
		return domain.ErrUnauthenticated
	}
	if err := s.gateway.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return s.failed(ctx, err, "Failed to change password")
	}
	s.notify.Success("Password changed successfully")
	return nil
}

// RequestRoleChange files a role change for the logged-in user. Asking for
// the role already held is refused locally.
func (s *AuthService) RequestRoleChange(ctx context.Context, in ports.RoleChangeInput) error {
	sess := s.sessions.Get()
	if sess.EffectiveRole() == "" {
		return domain.ErrUnauthenticated
	}
	if !in.RequestedRole.Known() || in.RequestedRole == sess.Role {
		return domain.ErrInvalidRole
	}
	if err := s.gateway.RequestRoleChange(ctx, in); err != nil {
		return s.failed(ctx, err, "Failed to request role change")
	}
	s.notify.Success("Role change requested")
	return nil
}
