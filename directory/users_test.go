package directory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventide/models"
)

func TestSyncFromIdentityNameFallback(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	cases := []struct {
		claim models.IdentityClaim
		want  string
	}{
		{models.IdentityClaim{Subject: "a", Name: "Ann", Nickname: "annie"}, "Ann"},
		{models.IdentityClaim{Subject: "b", Nickname: "bobby"}, "bobby"},
		{models.IdentityClaim{Subject: "c"}, "New User"},
	}
	for _, tc := range cases {
		u, err := f.users.SyncFromIdentity(ctx, tc.claim)
		require.NoError(t, err)
		assert.Equal(t, tc.want, u.Name)
	}
}

func TestSyncFromIdentityCopiesClaim(t *testing.T) {
	f := newMemoryFixture(t)

	u, err := f.users.SyncFromIdentity(context.Background(), models.IdentityClaim{
		Subject: "auth0|1",
		Email:   "a@x.com",
		Name:    "Ann",
		Picture: "https://img.example/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.User{ID: "auth0|1", Name: "Ann", Email: "a@x.com", AvatarURL: "https://img.example/a.png"}, u)
}

func TestSyncFromIdentityKeepsExistingProfile(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)
	f.signIn(t, "u1", "a@x.com")

	name := "Renamed"
	_, err := f.users.UpdateProfile(ctx, "u1", "u1", models.ProfileUpdate{Name: &name})
	require.NoError(t, err)

	u, err := f.users.SyncFromIdentity(ctx, models.IdentityClaim{Subject: "u1", Email: "new@x.com", Name: "Provider Name"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", u.Name)
	assert.Equal(t, "a@x.com", u.Email)
}

func TestSyncFromIdentityConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := f.users.SyncFromIdentity(ctx, models.IdentityClaim{Subject: "u1", Email: "a@x.com"})
			assert.NoError(t, err)
			assert.Equal(t, "u1", u.ID)
		}()
	}
	wg.Wait()
}

func TestSyncFromIdentityRejectsEmptySubject(t *testing.T) {
	f := newMemoryFixture(t)
	_, err := f.users.SyncFromIdentity(context.Background(), models.IdentityClaim{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)
	f.signIn(t, "u1", "a@x.com")

	name, avatar, blank := "Ann", "https://img.example/ann.png", ""

	t.Run("OtherUserForbidden", func(t *testing.T) {
		_, err := f.users.UpdateProfile(ctx, "u2", "u1", models.ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("NoFieldsInvalid", func(t *testing.T) {
		_, err := f.users.UpdateProfile(ctx, "u1", "u1", models.ProfileUpdate{})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.users.UpdateProfile(ctx, "u1", "u1", models.ProfileUpdate{Name: &blank})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("MissingUserNotFound", func(t *testing.T) {
		_, err := f.users.UpdateProfile(ctx, "ghost", "ghost", models.ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("PatchesOnlySuppliedFields", func(t *testing.T) {
		u, err := f.users.UpdateProfile(ctx, "u1", "u1", models.ProfileUpdate{AvatarURL: &avatar})
		require.NoError(t, err)
		assert.Equal(t, "User u1", u.Name)
		assert.Equal(t, avatar, u.AvatarURL)

		u, err = f.users.UpdateProfile(ctx, "u1", "u1", models.ProfileUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, models.User{ID: "u1", Name: name, Email: "a@x.com", AvatarURL: avatar}, u)
	})
}

func TestGetUnknownUser(t *testing.T) {
	f := newMemoryFixture(t)
	_, err := f.users.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
