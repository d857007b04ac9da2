// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebot/codebot/internal/access"
	"github.com/codebot/codebot/internal/audit"
	"github.com/codebot/codebot/internal/session"
	"github.com/codebot/codebot/pkg/errutil"
)

var tracer = otel.Tracer("codebot/auth")

// SessionManager is the subset of session.Manager used by Service.
type SessionManager interface {
	Create(ctx context.Context, userID, username string, role access.Role) (*session.Session, string, error)
	Validate(ctx context.Context, token string) (*session.Session, error)
	Destroy(ctx context.Context, token string) error
}

// PermissionChecker answers whether a role holds a capability.
type PermissionChecker interface {
	Can(role, capability string) bool
}

// MetricsRecorder counts auth outcomes.
type MetricsRecorder interface {
	RecordAuthAttempt(operation, outcome string)
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// LoginResult is returned by a successful Login. Token is the opaque session
// token for the client cookie; it is not stored anywhere.
type LoginResult struct {
	User    *PublicUser
	Session *session.Session
	Token   string
}

// Service coordinates registration, login and session checks.
type Service struct {
	users    UserRepository
	sessions SessionManager
	hasher   PasswordHasher
	perms    PermissionChecker
	events   audit.Publisher
	metrics  MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditPublisher sets where auth events are published.
func WithAuditPublisher(p audit.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics sets the outcome recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for last_login.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuthService creates a new Service.
func NewAuthService(
	users UserRepository,
	sessions SessionManager,
	hasher PasswordHasher,
	perms PermissionChecker,
	opts ...ServiceOption,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if perms == nil {
		return nil, oops.Errorf("permission checker is required")
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		perms:    perms,
		events:   audit.NopPublisher{},
		metrics:  nopMetrics{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register validates input, hashes the password and stores a new active user
// with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*PublicUser, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	if err := ValidateRegistration(in); err != nil {
		s.metrics.RecordAuthAttempt("register", KindOf(err).String())
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(ctx, span, "register", StorageError("hash password", err))
	}

	user, err := NewUser(in.Username, in.Email, digest, in.FullName, access.RoleUser)
	if err != nil {
		return nil, s.fail(ctx, span, "register", StorageError("build user", err))
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.RecordAuthAttempt("register", KindConflict.String())
			return nil, ConflictError("username or email already exists")
		}
		return nil, s.fail(ctx, span, "register", StorageError("create user", err))
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String(), "username", user.Username)
	s.publish(ctx, audit.EventUserRegistered, user.ID.String(), user.Username)
	s.metrics.RecordAuthAttempt("register", "success")

	return user.Public(), nil
}

// Login authenticates by username or email and starts a new session.
// Unknown login, wrong password and inactive account fail identically.
func (s *Service) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	login = strings.TrimSpace(login)

	user, lookupErr := s.users.GetByLogin(ctx, login)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, s.fail(ctx, span, "login", StorageError("get user by login", lookupErr))
	}

	// Always verify so a missing user costs the same as a wrong password.
	valid := s.hasher.Verify(password, targetHash)

	if !userExists || !valid || !user.IsActive {
		s.logger.InfoContext(ctx, "login rejected", "login", login)
		s.publish(ctx, audit.EventLoginFailed, "", login)
		s.metrics.RecordAuthAttempt("login", KindInvalidCredentials.String())
		span.SetStatus(codes.Error, MsgInvalidCredentials)
		return nil, InvalidCredentialsError()
	}

	sess, token, err := s.sessions.Create(ctx, user.ID.String(), user.Username, user.Role)
	if err != nil {
		return nil, s.fail(ctx, span, "login", StorageError("create session", err))
	}

	s.afterLogin(ctx, user, password)

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID.String(), "username", user.Username)
	s.publish(ctx, audit.EventLoginSucceeded, user.ID.String(), user.Username)
	s.metrics.RecordAuthAttempt("login", "success")

	return &LoginResult{User: user.Public(), Session: sess, Token: token}, nil
}

// afterLogin performs the best-effort writes that follow a successful login.
// Failures are logged and never fail the login.
func (s *Service) afterLogin(ctx context.Context, user *User, password string) {
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "best-effort user update failed",
			"operation", "update_last_login",
			"user_id", user.ID.String(),
			"error", err)
	}

	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, digest)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort user update failed",
			"operation", "upgrade_password_hash",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	s.logger.InfoContext(ctx, "upgraded legacy password hash", "user_id", user.ID.String())
}

// Logout destroys the session behind token. Unknown or empty tokens succeed.
func (s *Service) Logout(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer span.End()

	if token == "" {
		return nil
	}

	// Resolve the owner first so the audit trail names who logged out.
	var userID, username string
	if sess, err := s.sessions.Validate(ctx, token); err == nil {
		userID, username = sess.UserID, sess.Username
	}

	if err := s.sessions.Destroy(ctx, token); err != nil {
		return s.fail(ctx, span, "logout", StorageError("destroy session", err))
	}

	if userID != "" {
		s.logger.InfoContext(ctx, "logout", "user_id", userID)
		s.publish(ctx, audit.EventLogout, userID, username)
	}
	s.metrics.RecordAuthAttempt("logout", "success")
	return nil
}

// IsAuthenticated reports whether token names a live session, refreshing it.
func (s *Service) IsAuthenticated(ctx context.Context, token string) bool {
	_, ok := s.validSession(ctx, token)
	return ok
}

// CurrentUser returns the account behind token. The store is re-read so a
// deactivated account stops resolving immediately.
func (s *Service) CurrentUser(ctx context.Context, token string) (*PublicUser, bool, error) {
	ctx, span := tracer.Start(ctx, "auth.current_user")
	defer span.End()

	sess, ok := s.validSession(ctx, token)
	if !ok {
		return nil, false, nil
	}

	id, err := ulid.Parse(sess.UserID)
	if err != nil {
		return nil, false, s.fail(ctx, span, "current_user", StorageError("parse session user id", err))
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, s.fail(ctx, span, "current_user", StorageError("get user by id", err))
	}
	if !user.IsActive {
		return nil, false, nil
	}
	return user.Public(), true, nil
}

// HasPermission reports whether the session behind token may exercise
// capability. The role is the one captured when the session was created.
func (s *Service) HasPermission(ctx context.Context, token, capability string) bool {
	sess, ok := s.validSession(ctx, token)
	if !ok {
		return false
	}
	return s.perms.Can(string(sess.Role), capability)
}

func (s *Service) validSession(ctx context.Context, token string) (*session.Session, bool) {
	if token == "" {
		return nil, false
	}
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
			errutil.LogErrorContext(ctx, s.logger, "session validation failed", err)
		}
		return nil, false
	}
	return sess, true
}

// fail logs err, marks span as failed and returns err unchanged.
func (s *Service) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	errutil.LogErrorContext(ctx, s.logger, operation+" failed", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.RecordAuthAttempt(operation, KindOf(err).String())
	return err
}

func (s *Service) publish(ctx context.Context, typ audit.EventType, userID, username string) {
	ev := audit.NewEvent(ctx, typ, userID, username)
	ev.Time = s.now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "failed to publish audit event", err, "event", string(typ))
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordAuthAttempt(string, string) {}
