package controller

import (
	"net/http"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/gin-gonic/gin"
)

// MuteResponse is the stored status plus its effective state right now.
type MuteResponse struct {
	repository.MuteStatus
	CurrentlyMuted   bool    `json:"currently_muted"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

type MuteRequest struct {
	User            string `json:"user" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes" binding:"gte=0"`
}

type SnoozeRequest struct {
	User    string `json:"user" binding:"required"`
	Minutes int    `json:"minutes" binding:"required,gt=0"`
}

type UnmuteRequest struct {
	User string `json:"user" binding:"required"`
}

// MuteController exposes the shared mute/snooze state.
type MuteController struct {
	store repository.MuteStore
	now   func() time.Time
}

func NewMuteController(store repository.MuteStore, now func() time.Time) *MuteController {
	if now == nil {
		now = time.Now
	}
	return &MuteController{store: store, now: now}
}

func (mc *MuteController) respond(c *gin.Context, st repository.MuteStatus) {
	now := mc.now()
	c.JSON(http.StatusOK, MuteResponse{
		MuteStatus:       st,
		CurrentlyMuted:   st.IsCurrentlyMuted(now),
		RemainingSeconds: st.Remaining(now).Seconds(),
	})
}

// GetMute handles GET /mute.
func (mc *MuteController) GetMute(c *gin.Context) {
	st, err := mc.store.Load(c.Request.Context())
	if err != nil {
		respondError(c, logger.WithComponent("mute-controller"), "load mute status", err)
		return
	}
	mc.respond(c, st)
}

// PutMute handles PUT /mute - replaces the whole status.
func (mc *MuteController) PutMute(c *gin.Context) {
	var st repository.MuteStatus
	if err := c.ShouldBindJSON(&st); err != nil {
		badPayload(c, err)
		return
	}
	if err := mc.store.Save(c.Request.Context(), st); err != nil {
		respondError(c, logger.WithComponent("mute-controller"), "save mute status", err)
		return
	}
	mc.respond(c, st)
}

// Toggle handles POST /mute/toggle.
func (mc *MuteController) Toggle(c *gin.Context) {
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	st, err := mc.store.Toggle(c.Request.Context(), req.User, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		respondError(c, logger.WithComponent("mute-controller"), "toggle mute", err)
		return
	}
	logger.WithComponent("mute-controller").Debugf("mute toggled by %s, now muted=%v", req.User, st.IsMuted)
	mc.respond(c, st)
}

// Snooze handles POST /mute/snooze.
func (mc *MuteController) Snooze(c *gin.Context) {
	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	st, err := mc.store.Snooze(c.Request.Context(), req.User, req.Minutes)
	if err != nil {
		respondError(c, logger.WithComponent("mute-controller"), "snooze", err)
		return
	}
	mc.respond(c, st)
}

// Unmute handles POST /mute/unmute.
func (mc *MuteController) Unmute(c *gin.Context) {
	var req UnmuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	st, err := mc.store.Unmute(c.Request.Context(), req.User)
	if err != nil {
		respondError(c, logger.WithComponent("mute-controller"), "unmute", err)
		return
	}
	mc.respond(c, st)
}
