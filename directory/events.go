package directory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eventide/models"
)

const (
	defaultLookupConcurrency = 8
	unknownCreatorName       = "Unknown"
)

// Events is the event directory. Every operation takes the acting user,
// already resolved from the directory of users.
type Events struct {
	store      *models.EventStore
	users      *Users
	strictRSVP bool
	newID      func() string
	lookups    int
	logger     *slog.Logger
}

// EventsOption configures Events.
type EventsOption func(*Events)

// WithStrictRSVP makes RSVP require the same visibility as GetVisible.
// By default anyone who knows an event id may respond to it.
func WithStrictRSVP(strict bool) EventsOption {
	return func(e *Events) { e.strictRSVP = strict }
}

// WithIDGenerator replaces the event id generator.
func WithIDGenerator(fn func() string) EventsOption {
	return func(e *Events) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithLookupConcurrency bounds parallel creator lookups while listing.
func WithLookupConcurrency(n int) EventsOption {
	return func(e *Events) {
		if n > 0 {
			e.lookups = n
		}
	}
}

func WithEventsLogger(l *slog.Logger) EventsOption {
	return func(e *Events) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEvents(s *models.EventStore, users *Users, opts ...EventsOption) *Events {
	e := &Events{
		store:   s,
		users:   users,
		newID:   uuid.NewString,
		lookups: defaultLookupConcurrency,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListVisible returns the events user may see, newest date first.
func (e *Events) ListVisible(ctx context.Context, user models.User) ([]models.Event, error) {
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]models.EventState, 0, len(all))
	for _, ev := range all {
		if CanView(user, ev) {
			visible = append(visible, ev)
		}
	}

	creators := e.resolveCreators(ctx, user, visible)

	out := make([]models.Event, len(visible))
	for i, ev := range visible {
		out[i] = ev.Project(creators[ev.CreatorID])
	}
	sortByDateDesc(out)

	return out, nil
}

// resolveCreators looks up each distinct creator once. A failed lookup
// yields a placeholder instead of failing the listing.
func (e *Events) resolveCreators(ctx context.Context, actor models.User, events []models.EventState) map[string]models.User {
	var mu sync.Mutex
	creators := make(map[string]models.User)
	if actor.ID != "" {
		creators[actor.ID] = actor
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookups)
	pending := make(map[string]bool)
	for _, ev := range events {
		id := ev.CreatorID
		if _, ok := creators[id]; ok || pending[id] {
			continue
		}
		pending[id] = true

		g.Go(func() error {
			u := e.creator(gctx, id)
			mu.Lock()
			creators[id] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return creators
}

func (e *Events) creator(ctx context.Context, id string) models.User {
	u, err := e.users.Get(ctx, id)
	if err != nil {
		e.logger.Warn("creator lookup failed", slog.String("creator_id", id), slog.Any("error", err))
		return models.User{ID: id, Name: unknownCreatorName}
	}
	return u
}

func (e *Events) project(ctx context.Context, actor models.User, ev models.EventState) models.Event {
	if ev.CreatorID == actor.ID {
		return ev.Project(actor)
	}
	return ev.Project(e.creator(ctx, ev.CreatorID))
}

// GetVisible returns one event. A missing event and one user may not see
// both fail with ErrEventNotFound.
func (e *Events) GetVisible(ctx context.Context, user models.User, id string) (models.Event, error) {
	ev, err := e.store.Get(ctx, id)
	if err != nil {
		return models.Event{}, notFound(err, ErrEventNotFound)
	}
	if !CanView(user, ev) {
		return models.Event{}, ErrEventNotFound
	}
	return e.project(ctx, user, ev), nil
}

// CreateEvent stores a new event owned by user, who becomes its first
// attendee.
func (e *Events) CreateEvent(ctx context.Context, user models.User, in models.EventInput) (models.Event, error) {
	required := []struct{ name, value string }{
		{"title", in.Title},
		{"description", in.Description},
		{"date", in.Date},
		{"location", in.Location},
		{"imageUrl", in.ImageURL},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return models.Event{}, invalid("%s is required", f.name)
		}
	}

	ev := models.EventState{
		ID:          e.newID(),
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		Location:    in.Location,
		ImageURL:    in.ImageURL,
		CreatorID:   user.ID,
		Attendees: []models.Attendee{
			{User: user, Status: models.StatusGoing, Adults: 1, Kids: 0},
		},
		InvitedEmails: inviteList(in.InvitedEmails),
	}
	if err := e.store.Create(ctx, ev); err != nil {
		return models.Event{}, err
	}

	return ev.Project(user), nil
}

// owned loads event id and checks that user created it.
func (e *Events) owned(ctx context.Context, user models.User, id string) (models.EventState, error) {
	ev, err := e.store.Get(ctx, id)
	if err != nil {
		return models.EventState{}, notFound(err, ErrEventNotFound)
	}
	if ev.CreatorID != user.ID {
		return models.EventState{}, ErrForbidden
	}
	return ev, nil
}

// UpdateEvent changes the supplied editable fields of an event user created.
// Attendees and creator are never touched.
func (e *Events) UpdateEvent(ctx context.Context, user models.User, id string, upd models.EventUpdate) (models.Event, error) {
	ev, err := e.owned(ctx, user, id)
	if err != nil {
		return models.Event{}, err
	}

	fields := map[string]any{}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"title", upd.Title},
		{"description", upd.Description},
		{"date", upd.Date},
		{"location", upd.Location},
		{"imageUrl", upd.ImageURL},
	} {
		if f.value == nil {
			continue
		}
		if strings.TrimSpace(*f.value) == "" {
			return models.Event{}, invalid("%s must not be empty", f.name)
		}
		fields[f.name] = *f.value
	}
	if upd.InvitedEmails != nil {
		fields["invitedEmails"] = inviteList(*upd.InvitedEmails)
	}

	if len(fields) > 0 {
		ev, err = e.store.Patch(ctx, id, fields)
		if err != nil {
			return models.Event{}, notFound(err, ErrEventNotFound)
		}
	}

	return ev.Project(user), nil
}

// DeleteEvent removes an event user created and reports whether it was
// still there.
func (e *Events) DeleteEvent(ctx context.Context, user models.User, id string) (bool, error) {
	if _, err := e.owned(ctx, user, id); err != nil {
		return false, err
	}
	return e.store.Delete(ctx, id)
}

// RSVP records user's response to event id, replacing any earlier one.
// Concurrent responses to the same event are all kept.
func (e *Events) RSVP(ctx context.Context, user models.User, id string, in models.RSVPInput) (models.Event, error) {
	if !in.Status.Valid() {
		return models.Event{}, invalid("status must be one of going, maybe, not_going")
	}
	if in.Adults < 0 || in.Kids < 0 {
		return models.Event{}, invalid("adults and kids must be non-negative numbers")
	}

	ev, err := e.store.Mutate(ctx, id, func(ev models.EventState) (models.EventState, error) {
		if e.strictRSVP && !CanView(user, ev) {
			return ev, ErrEventNotFound
		}
		ev.Attendees = MergeAttendee(ev.Attendees, user, in.Status, in.Adults, in.Kids)
		return ev, nil
	})
	if err != nil {
		return models.Event{}, notFound(err, ErrEventNotFound)
	}

	return e.project(ctx, user, ev), nil
}

// sortByDateDesc orders events newest first. Dates that do not parse sort
// after every parsable one; ties keep their listing order.
func sortByDateDesc(events []models.Event) {
	slices.SortStableFunc(events, func(a, b models.Event) int {
		ta, okA := parseDate(a.Date)
		tb, okB := parseDate(b.Date)
		switch {
		case okA && okB:
			return tb.Compare(ta)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
