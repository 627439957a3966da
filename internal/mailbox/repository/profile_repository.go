package repository

import (
	"context"
	"errors"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg"

	"gorm.io/gorm"
)

// Profile member profile record
type Profile struct {
	ID          string `gorm:"primaryKey"`
	FirstName   string
	LastName    string
	ProfileType string `gorm:"index"`
	AvatarKey   string // MinIO object key
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName gorm table name
func (Profile) TableName() string { return "profiles" }

// ErrProfileNotFound no profile with the given id
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository definition get profile info
type ProfileRepository interface {
	AutoMigrate() error
	FindByID(ctx context.Context, id string) (*Profile, error)
	// FindIdentities embedded identity payload per id, missing ids are absent from the map
	FindIdentities(ctx context.Context, ids []string) (map[string]domain.Identity, error)
}

type profileRepository struct {
	db      *gorm.DB
	avatars avatarURLs
}

// NewProfileRepository create ProfileRepository
func NewProfileRepository(db *gorm.DB, signer AvatarSigner, avatarExpiry time.Duration) ProfileRepository {
	return &profileRepository{
		db:      db,
		avatars: avatarURLs{signer: signer, expiry: avatarExpiry},
	}
}

func (r *profileRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Profile{})
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) FindIdentities(ctx context.Context, ids []string) (map[string]domain.Identity, error) {
	ids = pkg.Unique(ids)
	out := make(map[string]domain.Identity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p.Identity(r.avatars.url(ctx, p.AvatarKey))
	}
	return out, nil
}

// Identity build the embedded payload for this profile
func (p Profile) Identity(avatarURL string) domain.Identity {
	return domain.NewIdentity(p.ID, p.FirstName, p.LastName, domain.ProfileType(p.ProfileType), avatarURL)
}
