package directory

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"eventide/models"
	"eventide/store"
)

type fixture struct {
	users  *Users
	events *Events
	estore *models.EventStore
}

func newFixture(t *testing.T, backend store.Backend, opts ...EventsOption) *fixture {
	t.Helper()
	us := models.NewUserStore(backend)
	es := models.NewEventStore(backend)
	users := NewUsers(us)
	return &fixture{
		users:  users,
		events: NewEvents(es, users, opts...),
		estore: es,
	}
}

func newMemoryFixture(t *testing.T, opts ...EventsOption) *fixture {
	return newFixture(t, store.NewMemoryBackend(), opts...)
}

func newRedisFixture(t *testing.T, opts ...EventsOption) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newFixture(t, store.NewRedisBackend(rdb, "eventide:"), opts...)
}

// signIn syncs a user the way the first authenticated request does.
func (f *fixture) signIn(t *testing.T, id, email string) models.User {
	t.Helper()
	u, err := f.users.SyncFromIdentity(context.Background(), models.IdentityClaim{
		Subject: id,
		Email:   email,
		Name:    "User " + id,
	})
	require.NoError(t, err)
	return u
}

func picnic(invited ...string) models.EventInput {
	return models.EventInput{
		Title:         "Picnic",
		Description:   "Sandwiches in the park",
		Date:          "2025-06-01T12:00:00Z",
		Location:      "Riverside",
		ImageURL:      "https://img.example/picnic.jpg",
		InvitedEmails: invited,
	}
}

func attendeeIDs(attendees []models.Attendee) []string {
	ids := make([]string, len(attendees))
	for i, a := range attendees {
		ids[i] = a.ID
	}
	return ids
}

func userID(i int) string { return fmt.Sprintf("u%d", i) }
