package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"sessiond/cmd/internal/auth/guard"
)

// maxChainHops bounds the replaced_by_jti walk when resolving the current session.
const maxChainHops = 8

// View is one entry of a session listing.
type View struct {
	ID          string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Persistent  bool
	IsCurrent   bool
	UserAgent   string
	IPAddress   string
	CountryCode string
}

// Actor identifies who asked for a revocation.
type Actor int

const (
	ActorUser Actor = iota
	ActorAdmin
)

func (a Actor) reason() RevokeReason {
	if a == ActorAdmin {
		return ReasonAdminForced
	}
	return ReasonRevokeOne
}

// ResolveCurrent follows replaced_by_jti from jti to the active row it leads to.
// It returns "" when the chain ends in a dead row, leaves the subject, or is too long.
func (s *Service) ResolveCurrent(ctx context.Context, subjectID, jti string, now time.Time) (string, error) {
	jti = strings.TrimSpace(jti)
	for hop := 0; jti != "" && hop <= maxChainHops; hop++ {
		row, err := s.store.GetByJTI(ctx, jti)
		if errors.Is(err, ErrSessionNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if row.SubjectID != subjectID {
			return "", nil
		}
		if row.Active(now) {
			return row.JTI, nil
		}
		if row.RevokedReason != ReasonRotated || row.ReplacedByJTI == nil {
			return "", nil
		}
		jti = *row.ReplacedByJTI
	}
	return "", nil
}

// ListSessions returns the subject's active sessions, newest first.
// currentJTI is the jti of the credential in hand; it may be mid-rotation.
func (s *Service) ListSessions(ctx context.Context, subjectID, currentJTI string, now time.Time) ([]View, error) {
	ctx, span := s.tracer.Start(ctx, "session.ListSessions")
	defer span.End()

	current, err := s.ResolveCurrent(ctx, subjectID, currentJTI, now)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListActive(ctx, subjectID, now)
	if err != nil {
		return nil, err
	}

	out := make([]View, 0, len(rows))
	for _, r := range rows {
		out = append(out, View{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			ExpiresAt:   r.ExpiresAt,
			Persistent:  r.Persistent,
			IsCurrent:   current != "" && r.JTI == current,
			UserAgent:   r.Metadata.UserAgent,
			IPAddress:   r.Metadata.IPAddress,
			CountryCode: r.Metadata.CountryCode,
		})
	}
	return out, nil
}

// RevokeOne revokes a single session owned by subjectID.
// A session of another subject is reported as ErrSessionNotFound.
func (s *Service) RevokeOne(ctx context.Context, subjectID, sessionID string, actor Actor, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "session.RevokeOne")
	defer span.End()

	row, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if row.SubjectID != subjectID {
		return ErrSessionNotFound
	}

	reason := actor.reason()
	changed, err := s.store.Revoke(ctx, row.ID, reason, now)
	if err != nil {
		return err
	}
	if actor == ActorAdmin {
		s.invalidateGuard(ctx, subjectID)
	}
	if changed {
		s.metrics.addRevoked(reason, 1)
		s.log.Info("auth.session.revoked", "subject", subjectID, "session_id", row.ID, "reason", string(reason))
	}
	return nil
}

// RevokeOthers revokes every active session of subjectID except the resolved
// current one. If the current session cannot be resolved nothing is excluded.
func (s *Service) RevokeOthers(ctx context.Context, subjectID, currentJTI string, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "session.RevokeOthers")
	defer span.End()

	current, err := s.ResolveCurrent(ctx, subjectID, currentJTI, now)
	if err != nil {
		return 0, err
	}
	n, err := s.store.RevokeSubject(ctx, subjectID, current, ReasonRevokeOthers, now)
	if err != nil {
		return 0, err
	}
	s.metrics.addRevoked(ReasonRevokeOthers, n)
	s.log.Info("auth.session.revoke_others", "subject", subjectID, "revoked", n)
	return n, nil
}

// RevokeAll revokes every active session of subjectID.
func (s *Service) RevokeAll(ctx context.Context, subjectID string, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "session.RevokeAll")
	defer span.End()

	n, err := s.store.RevokeSubject(ctx, subjectID, "", ReasonAdminForced, now)
	if err != nil {
		return 0, err
	}
	s.invalidateGuard(ctx, subjectID)
	s.metrics.addRevoked(ReasonAdminForced, n)
	s.log.Info("auth.session.revoke_all", "subject", subjectID, "revoked", n)
	return n, nil
}

// invalidateGuard drops cached account facts so the next mint re-reads the
// account. Admins usually lock or delete an account right before revoking.
func (s *Service) invalidateGuard(ctx context.Context, subjectID string) {
	inv, ok := s.guard.(guard.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, subjectID); err != nil {
		s.log.Warn("guard.cache.invalidate.fail", "subject", subjectID, "err", err)
	}
}

// Logout revokes the session behind refreshToken. Unknown, malformed or
// already-dead tokens are a no-op, and so is a rotated token past its grace
// window. A token still inside the window revokes its successor instead.
func (s *Service) Logout(ctx context.Context, refreshToken string, now time.Time) (LogoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.Logout")
	defer span.End()

	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return LogoutResult{}, nil
	}
	claims, err := s.codec.DecodeRefresh(raw, now)
	if err != nil {
		return LogoutResult{}, nil
	}

	row, err := s.logoutTarget(ctx, claims.Subject, claims.JTI, now)
	if err != nil || row == nil {
		return LogoutResult{SubjectID: claims.Subject}, err
	}

	changed, err := s.store.Revoke(ctx, row.ID, ReasonLogout, now)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return LogoutResult{}, err
	}
	if changed {
		s.metrics.addRevoked(ReasonLogout, 1)
		s.log.Info("auth.logout", "subject", row.SubjectID, "session_id", row.ID)
	}
	return LogoutResult{SubjectID: row.SubjectID, SessionID: row.ID, Revoked: changed}, nil
}

// logoutTarget picks the row a logout with jti may revoke, or nil.
func (s *Service) logoutTarget(ctx context.Context, subjectID, jti string, now time.Time) (*Row, error) {
	row, err := s.store.GetByJTI(ctx, jti)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.SubjectID != subjectID {
		return nil, nil
	}

	switch row.state(now, s.cfg.RotationGrace) {
	case stateActive:
		return &row, nil
	case stateRotatedInGrace:
		next, err := s.store.GetByJTI(ctx, *row.ReplacedByJTI)
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if next.SubjectID != subjectID || next.state(now, s.cfg.RotationGrace) != stateActive {
			return nil, nil
		}
		return &next, nil
	default:
		s.log.Info("auth.logout.ignored", "subject", subjectID, "state", row.state(now, s.cfg.RotationGrace).String())
		return nil, nil
	}
}

// LogoutResult identifies what a logout touched, for auditing.
type LogoutResult struct {
	SubjectID string
	SessionID string
	Revoked   bool
}
