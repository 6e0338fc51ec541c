package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"sessiond/cmd/internal/auth/guard"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Outcome is the typed result of a refresh attempt.
type Outcome int

const (
	// OutcomeRotated: a new session row was created and the presented one marked rotated.
	OutcomeRotated Outcome = iota + 1
	// OutcomeGraceReuse: the presented token was rotated moments ago; its successor's credentials were re-minted.
	OutcomeGraceReuse
	// OutcomeReissued: rotation is disabled; the same session was re-minted.
	OutcomeReissued
	// OutcomeMissing: no refresh token was presented.
	OutcomeMissing
	// OutcomeInvalid: unknown, expired, revoked, or replayed outside the grace window.
	OutcomeInvalid
	// OutcomeBlocked: the subject is blocked by the account guard.
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRotated:
		return "rotated"
	case OutcomeGraceReuse:
		return "grace_reuse"
	case OutcomeReissued:
		return "reissued"
	case OutcomeMissing:
		return "missing"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// OK reports whether the outcome carries credentials.
func (o Outcome) OK() bool {
	return o == OutcomeRotated || o == OutcomeGraceReuse || o == OutcomeReissued
}

// RefreshRequest is one /refresh call.
type RefreshRequest struct {
	Token string
	Now   time.Time

	// Silent marks a background probe: rejections are reported with Silent set
	// so the transport answers quietly.
	Silent bool

	// Metadata is recorded on the successor row when rotation creates one.
	Metadata Metadata
}

// RefreshResult is the engine's answer. Issued is set only when Outcome.OK().
type RefreshResult struct {
	Outcome Outcome
	Issued  Issued
	Block   guard.Status
	Silent  bool

	// reason is the internal classification, logged but never returned to clients.
	reason string
}

// Refresh validates a refresh token and, depending on its registry state,
// rotates it, hands back its successor, re-mints it, or rejects it.
//
// Only infrastructure failures are returned as errors.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (RefreshResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.Refresh")
	defer span.End()

	if req.Now.IsZero() {
		req.Now = time.Now().UTC()
	}
	start := time.Now()

	res, err := s.refresh(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		s.metrics.observeRefresh("error", time.Since(start))
		s.log.Error("auth.refresh.fail", "err", err)
		return RefreshResult{}, err
	}
	if req.Silent && !res.Outcome.OK() {
		res.Silent = true
	}

	span.SetAttributes(
		attribute.String("session.outcome", res.Outcome.String()),
		attribute.Bool("session.silent", req.Silent),
	)
	s.metrics.observeRefresh(res.Outcome.String(), time.Since(start))

	switch {
	case res.Outcome.OK():
		s.log.Info("auth.refresh."+res.Outcome.String(),
			"subject", res.Issued.SubjectID,
			"session_id", res.Issued.SessionID,
		)
	case res.Outcome == OutcomeBlocked:
		s.log.Warn("auth.refresh.blocked", "status", res.Block.String(), "silent", res.Silent)
	default:
		s.log.Warn("auth.refresh.reject", "outcome", res.Outcome.String(), "reason", res.reason, "silent", res.Silent)
	}
	return res, nil
}

func (s *Service) refresh(ctx context.Context, req RefreshRequest) (RefreshResult, error) {
	raw := strings.TrimSpace(req.Token)
	if raw == "" {
		return RefreshResult{Outcome: OutcomeMissing, reason: "missing"}, nil
	}

	claims, err := s.codec.DecodeRefresh(raw, req.Now)
	if err != nil {
		return rejected("decode"), nil
	}

	var res RefreshResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		row, err := tx.LoadForUpdate(ctx, claims.JTI)
		if errors.Is(err, ErrSessionNotFound) {
			res = rejected("unknown")
			return nil
		}
		if err != nil {
			return err
		}
		if row.SubjectID != claims.Subject {
			res = rejected("subject_mismatch")
			return nil
		}

		switch st := row.state(req.Now, s.cfg.RotationGrace); st {
		case stateActive:
			res, err = s.refreshActive(ctx, tx, row, req)
			return err
		case stateRotatedInGrace:
			res, err = s.refreshInGrace(ctx, tx, row, req.Now)
			return err
		default:
			res = rejected(st.String())
			return nil
		}
	})
	if errors.Is(err, ErrSessionRevoked) {
		// Revoked by a concurrent logout between lock and commit.
		return rejected("revoked_concurrently"), nil
	}
	if err != nil {
		return RefreshResult{}, err
	}
	return res, nil
}

func (s *Service) refreshActive(ctx context.Context, tx Tx, row Row, req RefreshRequest) (RefreshResult, error) {
	if res, blocked, err := s.checkGuard(ctx, row.SubjectID, req.Now); err != nil || blocked {
		return res, err
	}

	if !s.cfg.RotationEnabled {
		issued, err := s.mint(row, req.Now)
		if err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{Outcome: OutcomeReissued, Issued: issued}, nil
	}

	meta := req.Metadata
	if meta == (Metadata{}) {
		meta = row.Metadata
	}
	next, err := s.newRow(req.Now, row.SubjectID, row.Persistent, meta)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := tx.Insert(ctx, next); err != nil {
		return RefreshResult{}, err
	}
	if err := tx.MarkRotated(ctx, row.ID, next.JTI, req.Now); err != nil {
		return RefreshResult{}, err
	}

	issued, err := s.mint(next, req.Now)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{Outcome: OutcomeRotated, Issued: issued}, nil
}

// refreshInGrace re-mints the successor's credentials without creating a row.
func (s *Service) refreshInGrace(ctx context.Context, tx Tx, row Row, now time.Time) (RefreshResult, error) {
	succ, err := tx.GetByJTI(ctx, *row.ReplacedByJTI)
	if errors.Is(err, ErrSessionNotFound) {
		return rejected("successor_missing"), nil
	}
	if err != nil {
		return RefreshResult{}, err
	}
	if succ.SubjectID != row.SubjectID || !succ.Active(now) {
		return rejected("successor_inactive"), nil
	}

	if res, blocked, err := s.checkGuard(ctx, succ.SubjectID, now); err != nil || blocked {
		return res, err
	}

	issued, err := s.mint(succ, now)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{Outcome: OutcomeGraceReuse, Issued: issued}, nil
}

func (s *Service) checkGuard(ctx context.Context, subjectID string, now time.Time) (RefreshResult, bool, error) {
	st, err := s.guard.Check(ctx, subjectID, now)
	if err != nil {
		return RefreshResult{}, false, err
	}
	if st.Blocked() {
		return RefreshResult{Outcome: OutcomeBlocked, Block: st, reason: st.String()}, true, nil
	}
	return RefreshResult{}, false, nil
}

func rejected(reason string) RefreshResult {
	return RefreshResult{Outcome: OutcomeInvalid, reason: reason}
}
