package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mailcal/internal/poller"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Loop is the part of the poller the status API needs
type Loop interface {
	Status() poller.Status
	Trigger() bool
}

type Handler struct {
	loop Loop
}

func NewHandler(loop Loop) *Handler {
	return &Handler{loop: loop}
}

// GetStatus returns the last cycle statistics and the processed count
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.loop.Status())
}

// TriggerPoll requests an early poll cycle
func (h *Handler) TriggerPoll(c *gin.Context) {
	queued := h.loop.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// Router builds the gin engine with all routes
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, h)
	return r
}

// Start serves the status API until ctx is done
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("api: shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("api: status server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
