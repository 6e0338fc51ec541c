package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sessiond/cmd/identity/ids"
	"sessiond/cmd/internal/auth/guard"
	"sessiond/cmd/security/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Service implements issuance, rotation and the session presenter.
type Service struct {
	cfg     Config
	codec   token.Codec
	store   Store
	guard   guard.Guard
	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Issued is a freshly minted credential pair and the session it is bound to.
type Issued struct {
	SessionID  string
	SessionJTI string
	SubjectID  string
	Persistent bool

	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService validates cfg and wires the dependencies.
func NewService(cfg Config, store Store, codec token.Codec, g guard.Guard, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || codec == nil || g == nil {
		return nil, fmt.Errorf("session: nil dependency: %w", ErrConfig)
	}
	s := &Service{
		cfg:    cfg,
		codec:  codec,
		store:  store,
		guard:  g,
		log:    slog.Default(),
		tracer: otel.Tracer("sessiond/session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the rotation policy in effect.
func (s *Service) Config() Config { return s.cfg }

// IssueSession creates a new session for an already-authenticated subject.
// It fails with the guard's sentinel error if the subject is blocked.
func (s *Service) IssueSession(ctx context.Context, now time.Time, subjectID string, persistent bool, meta Metadata) (Issued, error) {
	ctx, span := s.tracer.Start(ctx, "session.IssueSession")
	defer span.End()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Issued{}, ErrSessionNotFound
	}

	st, err := s.guard.Check(ctx, subjectID, now)
	if err != nil {
		return Issued{}, err
	}
	if st.Blocked() {
		return Issued{}, st.Err()
	}

	row, err := s.newRow(now, subjectID, persistent, meta)
	if err != nil {
		return Issued{}, err
	}
	if err := s.store.Insert(ctx, row); err != nil {
		return Issued{}, err
	}

	issued, err := s.mint(row, now)
	if err != nil {
		return Issued{}, err
	}
	s.metrics.incIssued()
	s.log.Info("auth.session.issued", "subject", subjectID, "session_id", row.ID, "persistent", persistent)
	return issued, nil
}

// newRow builds a registry row: fresh jti, fresh id, expiry from the persistent flag.
func (s *Service) newRow(now time.Time, subjectID string, persistent bool, meta Metadata) (Row, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, err
	}
	return Row{
		ID:         id,
		JTI:        token.NewJTI(),
		SubjectID:  subjectID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.refreshTTL(persistent)),
		Persistent: persistent,
		Metadata:   meta,
	}, nil
}

// mint encodes an access+refresh pair bound to row's jti and expiry.
func (s *Service) mint(row Row, now time.Time) (Issued, error) {
	access, accessExp, err := s.codec.IssueAccess(row.SubjectID, row.JTI, now)
	if err != nil {
		return Issued{}, fmt.Errorf("session: issue access: %w", err)
	}
	refresh, err := s.codec.IssueRefresh(row.SubjectID, row.JTI, row.ExpiresAt, now)
	if err != nil {
		return Issued{}, fmt.Errorf("session: issue refresh: %w", err)
	}
	return Issued{
		SessionID:    row.ID,
		SessionJTI:   row.JTI,
		SubjectID:    row.SubjectID,
		Persistent:   row.Persistent,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   row.ExpiresAt,
	}, nil
}

// AuthenticateAccess decodes an access token. It does not consult the registry.
func (s *Service) AuthenticateAccess(accessToken string, now time.Time) (token.Claims, error) {
	return s.codec.DecodeAccess(accessToken, now)
}

// PresentedJTI returns the session jti carried by a verified refresh token of subjectID.
func (s *Service) PresentedJTI(refreshToken, subjectID string, now time.Time) (string, bool) {
	claims, err := s.codec.DecodeRefresh(refreshToken, now)
	if err != nil || claims.Subject != subjectID {
		return "", false
	}
	return claims.JTI, true
}
