package directory

import (
	"context"
	"errors"
	"strings"

	"eventide/models"
	"eventide/store"
)

const defaultUserName = "New User"

// Users is the user profile directory.
type Users struct {
	store *models.UserStore
}

func NewUsers(s *models.UserStore) *Users {
	return &Users{store: s}
}

// Get returns the stored profile for id, or ErrUserNotFound.
func (u *Users) Get(ctx context.Context, id string) (models.User, error) {
	user, err := u.store.Get(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// SyncFromIdentity returns the user for claim.Subject, creating it from the
// claim on first sign-in. An existing profile is returned as stored: later
// changes at the identity provider do not overwrite local edits.
func (u *Users) SyncFromIdentity(ctx context.Context, claim models.IdentityClaim) (models.User, error) {
	if claim.Subject == "" {
		return models.User{}, invalid("identity subject is empty")
	}

	user, err := u.store.Get(ctx, claim.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, err
	}

	user = models.User{
		ID:        claim.Subject,
		Name:      displayName(claim),
		Email:     claim.Email,
		AvatarURL: claim.Picture,
	}

	err = u.store.Create(ctx, user)
	if errors.Is(err, store.ErrAlreadyExists) {
		// A concurrent first sign-in won; theirs is the profile.
		return u.Get(ctx, claim.Subject)
	}
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func displayName(claim models.IdentityClaim) string {
	switch {
	case claim.Name != "":
		return claim.Name
	case claim.Nickname != "":
		return claim.Nickname
	default:
		return defaultUserName
	}
}

// UpdateProfile changes the name and/or avatar of user id on behalf of
// subject. Only the user themselves may do so.
func (u *Users) UpdateProfile(ctx context.Context, subject, id string, upd models.ProfileUpdate) (models.User, error) {
	if subject != id {
		return models.User{}, ErrForbidden
	}

	fields := map[string]any{}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
		fields["name"] = strings.TrimSpace(*upd.Name)
	}
	if upd.AvatarURL != nil && *upd.AvatarURL != "" {
		fields["avatarUrl"] = *upd.AvatarURL
	}
	if len(fields) == 0 {
		return models.User{}, invalid("no fields to update provided")
	}

	user, err := u.store.Patch(ctx, id, fields)
	if err != nil {
		return models.User{}, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// EnsureSeed inserts seed when the directory is empty.
func (u *Users) EnsureSeed(ctx context.Context, seed []models.User) (int, error) {
	return u.store.EnsureSeed(ctx, seed)
}
