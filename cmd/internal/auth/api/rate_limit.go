package authapi

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// checkLoginIPThrottle counts recent failed logins from ip in the audit log.
func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip string, now time.Time) (bool, time.Duration, error) {
	if ip == "" || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	count, err := h.auditor.CountSince(ctx, auditLoginFailed, ip, now.Add(-h.cfg.LoginIPWindow))
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, h.cfg.LoginIPWindow, nil
	}
	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
