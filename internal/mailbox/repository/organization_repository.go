package repository

import (
	"context"
	"fmt"
	"time"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg"

	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	poolProfilesTable       = "pool_profiles"
	swimSchoolProfilesTable = "swim_school_profiles"
)

// OrganizationRepository organization names kept outside the profile record
type OrganizationRepository struct {
	db      *pgxpool.Pool
	avatars avatarURLs
}

// NewOrganizationRepository create OrganizationRepository
func NewOrganizationRepository(db *pgxpool.Pool, signer AvatarSigner, avatarExpiry time.Duration) *OrganizationRepository {
	return &OrganizationRepository{
		db:      db,
		avatars: avatarURLs{signer: signer, expiry: avatarExpiry},
	}
}

// ResolveOrganizationNames query both organization tables in parallel.
// Pool names take precedence when an id is present in both tables.
// The merged result is returned even if one of the lookups failed.
func (r *OrganizationRepository) ResolveOrganizationNames(ctx context.Context, ids []string) (map[string]domain.OrganizationIdentity, error) {
	ids = pkg.Unique(ids)
	merged := make(map[string]domain.OrganizationIdentity, len(ids))
	if len(ids) == 0 {
		return merged, nil
	}

	var pools, schools map[string]domain.OrganizationIdentity
	// 不用 WithContext: 一邊失敗不取消另一邊
	var g errgroup.Group
	g.Go(func() error {
		var err error
		pools, err = r.lookup(ctx, poolProfilesTable, ids)
		return err
	})
	g.Go(func() error {
		var err error
		schools, err = r.lookup(ctx, swimSchoolProfilesTable, ids)
		return err
	})
	err := g.Wait()

	return MergeOrganizationNames(pools, schools), err
}

// MergeOrganizationNames first non-empty name per id wins, in argument order
func MergeOrganizationNames(sources ...map[string]domain.OrganizationIdentity) map[string]domain.OrganizationIdentity {
	merged := make(map[string]domain.OrganizationIdentity)
	for _, src := range sources {
		for id, org := range src {
			if org.Name == "" {
				continue
			}
			if _, ok := merged[id]; ok {
				continue
			}
			merged[id] = org
		}
	}
	return merged
}

func (r *OrganizationRepository) lookup(ctx context.Context, table string, ids []string) (map[string]domain.OrganizationIdentity, error) {
	query := fmt.Sprintf(
		"SELECT id, COALESCE(organization_name, ''), COALESCE(avatar_key, '') FROM %s WHERE id = ANY($1)",
		table,
	)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]domain.OrganizationIdentity)
	for rows.Next() {
		var id, name, avatarKey string
		if err := rows.Scan(&id, &name, &avatarKey); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[id] = domain.OrganizationIdentity{Name: name, AvatarURL: r.avatars.url(ctx, avatarKey)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", table, err)
	}
	return out, nil
}
