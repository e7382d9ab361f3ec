package models

// AttendeeStatus is a guest's answer to an invitation.
type AttendeeStatus string

const (
	StatusGoing    AttendeeStatus = "going"
	StatusMaybe    AttendeeStatus = "maybe"
	StatusNotGoing AttendeeStatus = "not_going"
)

// Valid reports whether s is one of the known statuses.
func (s AttendeeStatus) Valid() bool {
	switch s {
	case StatusGoing, StatusMaybe, StatusNotGoing:
		return true
	}
	return false
}

// Attendee is a user's RSVP embedded in an event. It is never stored on
// its own.
type Attendee struct {
	User
	Status AttendeeStatus `json:"status"`
	Adults int            `json:"adults"`
	Kids   int            `json:"kids"`
}

// EventState is the stored form of an event.
type EventState struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Date          string     `json:"date"` // ISO 8601
	Location      string     `json:"location"`
	ImageURL      string     `json:"imageUrl"`
	CreatorID     string     `json:"creatorId"`
	Attendees     []Attendee `json:"attendees"`
	InvitedEmails []string   `json:"invitedEmails"`
}

// Event is the form returned to clients: CreatorID resolved to a User.
type Event struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Date          string     `json:"date"`
	Location      string     `json:"location"`
	ImageURL      string     `json:"imageUrl"`
	Creator       User       `json:"creator"`
	Attendees     []Attendee `json:"attendees"`
	InvitedEmails []string   `json:"invitedEmails"`
}

// Project joins the stored event with its resolved creator.
func (s EventState) Project(creator User) Event {
	attendees := s.Attendees
	if attendees == nil {
		attendees = []Attendee{}
	}
	invited := s.InvitedEmails
	if invited == nil {
		invited = []string{}
	}

	return Event{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		Date:          s.Date,
		Location:      s.Location,
		ImageURL:      s.ImageURL,
		Creator:       creator,
		Attendees:     attendees,
		InvitedEmails: invited,
	}
}

// EventInput is the body of a create request.
type EventInput struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Date          string   `json:"date"`
	Location      string   `json:"location"`
	ImageURL      string   `json:"imageUrl"`
	InvitedEmails []string `json:"invitedEmails"`
}

// EventUpdate is the body of an edit request. Nil fields are left untouched;
// attendees and creator are not editable.
type EventUpdate struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	Date          *string   `json:"date"`
	Location      *string   `json:"location"`
	ImageURL      *string   `json:"imageUrl"`
	InvitedEmails *[]string `json:"invitedEmails"`
}

// RSVPInput is a guest's response.
type RSVPInput struct {
	Status AttendeeStatus `json:"status"`
	Adults int            `json:"adults"`
	Kids   int            `json:"kids"`
}
