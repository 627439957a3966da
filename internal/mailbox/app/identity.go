package app

import (
	"context"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg/logger"

	"go.uber.org/zap"
)

// OrganizationDirectory resolve organization display names by account id
type OrganizationDirectory interface {
	ResolveOrganizationNames(ctx context.Context, ids []string) (map[string]domain.OrganizationIdentity, error)
}

// IdentityResolver fill in organizational names missing from embedded profile payloads
type IdentityResolver struct {
	directory OrganizationDirectory
}

// NewIdentityResolver create IdentityResolver, a nil directory disables the fallback pass
func NewIdentityResolver(directory OrganizationDirectory) *IdentityResolver {
	return &IdentityResolver{directory: directory}
}

// Resolve replace unresolved organizational payloads in messages, in place.
// One directory call per invocation, batched by distinct id. Lookup failures keep the placeholder.
func (r *IdentityResolver) Resolve(ctx context.Context, messages []domain.Message) {
	if r == nil || r.directory == nil {
		return
	}

	ids := PendingOrganizationIDs(messages)
	if len(ids) == 0 {
		return
	}

	names, err := r.directory.ResolveOrganizationNames(ctx, ids)
	if err != nil {
		// 部分結果仍可使用
		logger.Log.Warn("resolve organization names failed", zap.Int("ids", len(ids)), zap.Error(err))
	}
	if len(names) == 0 {
		return
	}

	for i := range messages {
		messages[i].Sender = resolveWith(messages[i].Sender, names)
		messages[i].Recipient = resolveWith(messages[i].Recipient, names)
	}
}

// PendingOrganizationIDs distinct ids of unresolved organizational payloads, first-seen order
func PendingOrganizationIDs(messages []domain.Message) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	add := func(ident domain.Identity) {
		u, ok := ident.(domain.UnresolvedIdentity)
		if !ok || !u.ProfileType.IsOrganization() || u.ID == "" {
			return
		}
		if _, dup := seen[u.ID]; dup {
			return
		}
		seen[u.ID] = struct{}{}
		ids = append(ids, u.ID)
	}
	for _, m := range messages {
		add(m.Sender)
		add(m.Recipient)
	}
	return ids
}

func resolveWith(ident domain.Identity, names map[string]domain.OrganizationIdentity) domain.Identity {
	u, ok := ident.(domain.UnresolvedIdentity)
	if !ok || !u.ProfileType.IsOrganization() {
		return ident
	}
	org, found := names[u.ID]
	if !found || org.Name == "" {
		return ident
	}
	return u.Resolve(org)
}
