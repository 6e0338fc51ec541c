package authapi

import (
	"time"

	"sessiond/cmd/internal/auth/session"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Silent       bool   `json:"silent"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeOthersRequest struct {
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type adminRevokeRequest struct {
	SessionID string `json:"session_id"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id"`
}

type sessionView struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Persistent  bool      `json:"persistent"`
	IsCurrent   bool      `json:"is_current"`
	UserAgent   *string   `json:"user_agent"`
	IPAddress   *string   `json:"ip_address"`
	CountryCode *string   `json:"country_code"`
}

type sessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

type revokeOthersResponse struct {
	Revoked int `json:"revoked"`
}

func toTokenResponse(issued session.Issued) tokenResponse {
	return tokenResponse{
		AccessToken:      issued.AccessToken,
		AccessExpiresAt:  issued.AccessExp,
		RefreshToken:     issued.RefreshToken,
		RefreshExpiresAt: issued.RefreshExp,
		SessionID:        issued.SessionID,
	}
}

func toSessionViews(views []session.View) []sessionView {
	out := make([]sessionView, 0, len(views))
	for _, v := range views {
		out = append(out, sessionView{
			ID:          v.ID,
			CreatedAt:   v.CreatedAt,
			ExpiresAt:   v.ExpiresAt,
			Persistent:  v.Persistent,
			IsCurrent:   v.IsCurrent,
			UserAgent:   strPtrOrNil(v.UserAgent),
			IPAddress:   strPtrOrNil(v.IPAddress),
			CountryCode: strPtrOrNil(v.CountryCode),
		})
	}
	return out
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
