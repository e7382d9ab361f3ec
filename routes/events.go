package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventide/models"
	"eventide/utils"
)

// GET /api/events
func (d *deps) getEvents(c *gin.Context) {
	user, found := d.currentUser(c)
	if !found {
		return
	}

	events, err := d.events.ListVisible(c.Request.Context(), user)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}

// GET /api/events/:id
func (d *deps) getEvent(c *gin.Context) {
	user, found := d.currentUser(c)
	if !found {
		return
	}

	event, err := d.events.GetVisible(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, http.StatusOK, event)
}

// POST /api/events
func (d *deps) createEvent(c *gin.Context) {
	var in models.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bad(c, "Could not parse request data.")
		return
	}

	user, found := d.currentUser(c)
	if !found {
		return
	}

	event, err := d.events.CreateEvent(c.Request.Context(), user, in)
	if err != nil {
		d.fail(c, err)
		return
	}

	d.purgeEvent(c, event.ID)
	ok(c, http.StatusCreated, event)
}

// PUT /api/events/:id
func (d *deps) updateEvent(c *gin.Context) {
	var upd models.EventUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		bad(c, "Could not parse request data.")
		return
	}

	user, found := d.currentUser(c)
	if !found {
		return
	}

	id := c.Param("id")
	event, err := d.events.UpdateEvent(c.Request.Context(), user, id, upd)
	if err != nil {
		d.fail(c, err)
		return
	}

	d.purgeEvent(c, id)
	ok(c, http.StatusOK, event)
}

// DELETE /api/events/:id
func (d *deps) deleteEvent(c *gin.Context) {
	user, found := d.currentUser(c)
	if !found {
		return
	}

	id := c.Param("id")
	deleted, err := d.events.DeleteEvent(c.Request.Context(), user, id)
	if err != nil {
		d.fail(c, err)
		return
	}

	d.purgeEvent(c, id)
	ok(c, http.StatusOK, gin.H{"id": id, "deleted": deleted})
}

// rsvpRequest uses pointers so a missing count is told apart from zero.
type rsvpRequest struct {
	Status *models.AttendeeStatus `json:"status"`
	Adults *int                   `json:"adults"`
	Kids   *int                   `json:"kids"`
}

// POST /api/events/:id/rsvp
func (d *deps) rsvp(c *gin.Context) {
	var req rsvpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bad(c, "Could not parse request data.")
		return
	}
	if req.Status == nil || *req.Status == "" {
		bad(c, "status is required")
		return
	}
	if req.Adults == nil || req.Kids == nil {
		bad(c, "adults and kids must be non-negative numbers")
		return
	}

	user, found := d.currentUser(c)
	if !found {
		return
	}

	id := c.Param("id")
	event, err := d.events.RSVP(c.Request.Context(), user, id, models.RSVPInput{
		Status: *req.Status,
		Adults: *req.Adults,
		Kids:   *req.Kids,
	})
	if err != nil {
		d.fail(c, err)
		return
	}

	d.purgeEvent(c, id)
	ok(c, http.StatusOK, event)
}

func (d *deps) purgeEvent(c *gin.Context, id string) {
	d.purge(c, func(inv *utils.CacheInvalidator) error {
		if err := inv.PurgeEventsList(c); err != nil {
			return err
		}
		return inv.PurgeEventItem(c, id)
	})
}
