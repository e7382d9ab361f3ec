package directory

import "eventide/models"

// MergeAttendee returns attendees with user's entry replaced by a fresh one
// built from the current profile. Other entries keep their order; the new
// entry goes last. The input slice is not modified.
func MergeAttendee(attendees []models.Attendee, user models.User, status models.AttendeeStatus, adults, kids int) []models.Attendee {
	out := make([]models.Attendee, 0, len(attendees)+1)
	for _, a := range attendees {
		if a.ID != user.ID {
			out = append(out, a)
		}
	}
	return append(out, models.Attendee{User: user, Status: status, Adults: adults, Kids: kids})
}
