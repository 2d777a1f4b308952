package api

import (
	"time"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
)

type registerRequest struct {
	Telephone string `json:"telephone" validate:"required,min=5,max=20"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"required,max=64"`
	LastName  string `json:"lastName" validate:"max=64"`
	Username  string `json:"username" validate:"omitempty,min=3,max=32,alphanum"`
}

type loginRequest struct {
	Telephone string `json:"telephone" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Telephone string    `json:"telephone"`
	ProfileID string    `json:"profileId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

type profileResponse struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName,omitempty"`
	Username   string     `json:"username,omitempty"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

type sessionResponse struct {
	SessionID        string    `json:"sessionId"`
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type registerResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User    userResponse     `json:"user"`
	Profile *profileResponse `json:"profile,omitempty"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Telephone: u.Telephone,
		ProfileID: u.ProfileID,
		CreatedAt: u.CreatedAt,
	}
}

func toProfileResponse(p identity.Profile) *profileResponse {
	return &profileResponse{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Username:   p.Username,
		LastSeenAt: p.LastSeenAt,
	}
}

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		SessionID:        issued.SessionID,
		AccessToken:      issued.Pair.AccessToken,
		AccessExpiresAt:  issued.Pair.AccessExpiresAt,
		RefreshToken:     issued.Pair.RefreshToken,
		RefreshExpiresAt: issued.Pair.RefreshExpiresAt,
	}
}
