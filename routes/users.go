package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventide/middlewares"
	"eventide/models"
	"eventide/utils"
)

// currentUser resolves the caller's stored profile. Callers that never
// synced get ErrUserNotFound.
func (d *deps) currentUser(c *gin.Context) (models.User, bool) {
	sub := middlewares.Subject(c)
	if sub == "" {
		d.fail(c, utils.ErrUnauthenticated)
		return models.User{}, false
	}

	user, err := d.users.Get(c.Request.Context(), sub)
	if err != nil {
		d.fail(c, err)
		return models.User{}, false
	}
	return user, true
}

// POST /api/auth/sync
func (d *deps) syncUser(c *gin.Context) {
	claim, found := middlewares.Identity(c)
	if !found {
		d.fail(c, utils.ErrUnauthenticated)
		return
	}

	user, err := d.users.SyncFromIdentity(c.Request.Context(), claim)
	if err != nil {
		d.fail(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

// PUT /api/users/:id
func (d *deps) updateUser(c *gin.Context) {
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		bad(c, "Could not parse request data.")
		return
	}

	user, err := d.users.UpdateProfile(c.Request.Context(), middlewares.Subject(c), c.Param("id"), upd)
	if err != nil {
		d.fail(c, err)
		return
	}

	// The profile is embedded in every event the user created or answered.
	d.purge(c, func(inv *utils.CacheInvalidator) error { return inv.PurgeAll(c) })

	ok(c, http.StatusOK, user)
}

// purge runs a cache invalidation when a response cache is configured.
// Failures are logged; the write has already happened.
func (d *deps) purge(c *gin.Context, fn func(*utils.CacheInvalidator) error) {
	if d.inv == nil {
		return
	}
	if err := fn(d.inv); err != nil {
		d.logger.WarnContext(c.Request.Context(), "cache purge failed", slog.Any("error", err))
	}
}
