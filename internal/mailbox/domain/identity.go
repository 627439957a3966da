package domain

// ProfileType account category
type ProfileType string

const (
	// ProfileTypeLifeguard individual lifeguard account
	ProfileTypeLifeguard ProfileType = "lifeguard"
	// ProfileTypeInstructor individual swim instructor account
	ProfileTypeInstructor ProfileType = "instructor"
	// ProfileTypePool organizational account, name lives in pool_profiles
	ProfileTypePool ProfileType = "pool"
	// ProfileTypeSwimSchool organizational account, name lives in swim_school_profiles
	ProfileTypeSwimSchool ProfileType = "swim_school"
)

// PlaceholderName shown when no display name can be resolved
const PlaceholderName = "Unknown user"

// IsOrganization report whether the category keeps its display name outside the profile record
func (p ProfileType) IsOrganization() bool {
	return p == ProfileTypePool || p == ProfileTypeSwimSchool
}

// Identity embedded profile payload of a message participant.
// It is either a ResolvedIdentity or an UnresolvedIdentity.
type Identity interface {
	IdentityID() string
	Category() ProfileType
	isIdentity()
}

// ResolvedIdentity participant with a display name
type ResolvedIdentity struct {
	ID          string      `json:"id"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	ProfileType ProfileType `json:"profile_type"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
}

// UnresolvedIdentity participant whose profile record carries no name
type UnresolvedIdentity struct {
	ID          string      `json:"id"`
	ProfileType ProfileType `json:"profile_type"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
}

// IdentityID implement Identity
func (r ResolvedIdentity) IdentityID() string { return r.ID }

// Category implement Identity
func (r ResolvedIdentity) Category() ProfileType { return r.ProfileType }

func (ResolvedIdentity) isIdentity() {}

// IdentityID implement Identity
func (u UnresolvedIdentity) IdentityID() string { return u.ID }

// Category implement Identity
func (u UnresolvedIdentity) Category() ProfileType { return u.ProfileType }

func (UnresolvedIdentity) isIdentity() {}

// NewIdentity build the identity variant from raw profile fields
func NewIdentity(id, firstName, lastName string, profileType ProfileType, avatarURL string) Identity {
	if firstName == "" {
		return UnresolvedIdentity{ID: id, ProfileType: profileType, AvatarURL: avatarURL}
	}
	return ResolvedIdentity{
		ID:          id,
		FirstName:   firstName,
		LastName:    lastName,
		ProfileType: profileType,
		AvatarURL:   avatarURL,
	}
}

// OrganizationIdentity organization name record
type OrganizationIdentity struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Resolve turn an unresolved organizational identity into a resolved one, surname cleared
func (u UnresolvedIdentity) Resolve(org OrganizationIdentity) ResolvedIdentity {
	avatar := u.AvatarURL
	if org.AvatarURL != "" {
		avatar = org.AvatarURL
	}
	return ResolvedIdentity{
		ID:          u.ID,
		FirstName:   org.Name,
		LastName:    "",
		ProfileType: u.ProfileType,
		AvatarURL:   avatar,
	}
}

// Contact display-ready identity of the other participant
type Contact struct {
	ID          string      `json:"id"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	ProfileType ProfileType `json:"profile_type,omitempty"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
}

// ContactFrom derive the contact for id, falling back to the placeholder name
func ContactFrom(id string, ident Identity) Contact {
	switch v := ident.(type) {
	case ResolvedIdentity:
		return Contact{
			ID:          id,
			FirstName:   v.FirstName,
			LastName:    v.LastName,
			ProfileType: v.ProfileType,
			AvatarURL:   v.AvatarURL,
		}
	case UnresolvedIdentity:
		return Contact{
			ID:          id,
			FirstName:   PlaceholderName,
			ProfileType: v.ProfileType,
			AvatarURL:   v.AvatarURL,
		}
	default:
		return Contact{ID: id, FirstName: PlaceholderName}
	}
}

// CurrentUser identity of the session owner
type CurrentUser struct {
	ID          string
	ProfileType ProfileType
}
