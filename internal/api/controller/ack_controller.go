package controller

import (
	"net/http"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/gin-gonic/gin"
)

type AckController struct {
	store repository.AckStore
	now   func() time.Time
}

func NewAckController(store repository.AckStore, now func() time.Time) *AckController {
	if now == nil {
		now = time.Now
	}
	return &AckController{store: store, now: now}
}

// dateOrToday returns the date query parameter, today when absent.
func dateOrToday(c *gin.Context, now func() time.Time) string {
	if date := c.Query("date"); date != "" {
		return date
	}
	return now().Format(repository.DateLayout)
}

// GetAcknowledgments handles GET /acknowledgments?date=YYYY-MM-DD.
func (ac *AckController) GetAcknowledgments(c *gin.Context) {
	date := dateOrToday(c, ac.now)
	acks, err := ac.store.LoadForDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, logger.WithComponent("ack-controller"), "list acknowledgments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "acknowledgments": acks, "count": len(acks)})
}

// GetSummary handles GET /acknowledgments/summary?date=YYYY-MM-DD.
func (ac *AckController) GetSummary(c *gin.Context) {
	sum, err := ac.store.Summary(c.Request.Context(), dateOrToday(c, ac.now))
	if err != nil {
		respondError(c, logger.WithComponent("ack-controller"), "summarize acknowledgments", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GetAcknowledgment handles GET /acknowledgment?date=&manifest_time=&carrier=.
func (ac *AckController) GetAcknowledgment(c *gin.Context) {
	ack, err := ac.store.Get(c.Request.Context(), dateOrToday(c, ac.now), c.Query("manifest_time"), c.Query("carrier"))
	if err != nil {
		respondError(c, logger.WithComponent("ack-controller"), "get acknowledgment", err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// CreateAcknowledgment handles POST /acknowledgment. An existing record with
// the same date, manifest time and carrier is replaced.
func (ac *AckController) CreateAcknowledgment(c *gin.Context) {
	var ack repository.Acknowledgment
	if err := c.ShouldBindJSON(&ack); err != nil {
		badPayload(c, err)
		return
	}
	if ack.Timestamp.IsZero() {
		ack.Timestamp = repository.NewTimestamp(ac.now())
	}
	if err := ac.store.Save(c.Request.Context(), ack); err != nil {
		respondError(c, logger.WithComponent("ack-controller"), "save acknowledgment", err)
		return
	}
	ack.Normalize()
	c.JSON(http.StatusCreated, ack)
}

// ClearAcknowledgments handles DELETE /acknowledgments?date=YYYY-MM-DD.
// The date is mandatory so a bare DELETE never wipes today.
func (ac *AckController) ClearAcknowledgments(c *gin.Context) {
	log := logger.WithComponent("ack-controller")
	date := c.Query("date")
	n, err := ac.store.ClearDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, log, "clear acknowledgments", err)
		return
	}
	log.Infof("cleared %d acknowledgments for %s", n, date)
	c.JSON(http.StatusOK, gin.H{"date": date, "removed": n})
}
