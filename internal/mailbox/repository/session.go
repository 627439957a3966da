package repository

import (
	"context"

	"lifeguard_mailbox/internal/mailbox/domain"
	errprocess "lifeguard_mailbox/pkg/err"
)

// ProfileSession current user backed by the authenticated member id
type ProfileSession struct {
	profiles ProfileRepository
	memberID string
}

// NewProfileSession create ProfileSession
func NewProfileSession(profiles ProfileRepository, memberID string) *ProfileSession {
	return &ProfileSession{profiles: profiles, memberID: memberID}
}

// CurrentUser profile of the session owner
func (s *ProfileSession) CurrentUser(ctx context.Context) (*domain.CurrentUser, error) {
	if s.memberID == "" {
		return nil, errprocess.Set("no authenticated member")
	}
	p, err := s.profiles.FindByID(ctx, s.memberID)
	if err != nil {
		return nil, err
	}
	return &domain.CurrentUser{ID: p.ID, ProfileType: domain.ProfileType(p.ProfileType)}, nil
}
