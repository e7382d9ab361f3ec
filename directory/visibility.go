package directory

import (
	"slices"

	"eventide/models"
)

// CanView reports whether user may see ev: they created it or their email
// is on the invite list exactly as it was stored.
func CanView(user models.User, ev models.EventState) bool {
	if user.ID != "" && ev.CreatorID == user.ID {
		return true
	}
	return slices.Contains(ev.InvitedEmails, user.Email)
}

// inviteList copies the invite list as given. A missing list becomes empty.
func inviteList(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
