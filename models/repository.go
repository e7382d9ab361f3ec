package models

import "eventide/store"

// Collection names are shared by every backend, so data written by one
// deployment stays readable after switching STORE_BACKEND between
// compatible stores.
var (
	UserSchema = store.Schema[User]{
		Entity: "eventide-user",
		Index:  "eventide-users",
		Key:    func(u User) string { return u.ID },
	}

	EventSchema = store.Schema[EventState]{
		Entity: "eventide-event",
		Index:  "eventide-events",
		Key:    func(e EventState) string { return e.ID },
	}
)

// UserStore and EventStore are the typed collections the directories work on.
type (
	UserStore  = store.Store[User]
	EventStore = store.Store[EventState]
)

// NewUserStore binds the user collection to backend.
func NewUserStore(backend store.Backend, opts ...store.Option) *UserStore {
	return store.New(backend, UserSchema, opts...)
}

// NewEventStore binds the event collection to backend.
func NewEventStore(backend store.Backend, opts ...store.Option) *EventStore {
	return store.New(backend, EventSchema, opts...)
}
