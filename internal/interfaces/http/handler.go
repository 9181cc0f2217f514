package httpinterface

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tdex-network/escrowd/internal/core/application/escrow"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/pkg/stats"
)

// EscrowService is the subset of the engine exposed over http.
type EscrowService interface {
	CreateTicket(ctx context.Context, owner, description string) (string, error)
	HandleEvent(
		ctx context.Context,
		ticketID string, kind domain.EventKind, actor, payload string,
	) (*escrow.EventResult, error)
	AdminRelease(ctx context.Context, ticketID string) (*escrow.EventResult, error)
	AdminCancel(ctx context.Context, ticketID string) (*escrow.EventResult, error)
	ReloadTickets(ctx context.Context) (int, error)
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	Stats() escrow.Stats
	IsAdmin(actor string) bool
}

type createTicketRequest struct {
	Description string `json:"description"`
}

type eventRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Payload string `json:"payload"`
}

type handler struct {
	svc EscrowService
}

// NewRouter returns the gin engine serving the escrow API. If apiSecret is
// not empty, every /v1 request must carry a HS256 bearer token signed with
// it.
func NewRouter(svc EscrowService, apiSecret string) *gin.Engine {
	h := &handler{svc}

	r := gin.New()
	r.Use(gin.Recovery(), stats.Middleware())
	r.GET("/healthz", h.health)
	r.GET("/metrics", stats.Handler())

	v1 := r.Group("/v1")
	if apiSecret != "" {
		v1.Use(requireToken([]byte(apiSecret)))
	}
	v1.Use(withActor())

	v1.POST("/tickets", h.createTicket)
	v1.GET("/tickets", h.listTickets)
	v1.GET("/tickets/:id", h.getTicket)
	v1.POST("/tickets/:id/events", h.handleEvent)

	admin := v1.Group("/admin")
	admin.Use(requireAdmin(svc))
	admin.POST("/tickets/:id/release", h.adminRelease)
	admin.POST("/tickets/:id/cancel", h.adminCancel)
	admin.POST("/reload", h.reload)
	admin.GET("/stats", h.getStats)

	return r
}

// health handles GET /healthz
func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createTicket handles POST /v1/tickets
func (h *handler) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, invalidBody(err))
		return
	}

	id, err := h.svc.CreateTicket(c.Request.Context(), actorOf(c), req.Description)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ticket, err := h.svc.GetTicket(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

// listTickets handles GET /v1/tickets
func (h *handler) listTickets(c *gin.Context) {
	tickets, err := h.svc.ListTickets(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	status := strings.TrimSpace(c.Query("status"))
	if status != "" {
		filtered := make([]domain.Ticket, 0, len(tickets))
		for _, t := range tickets {
			if t.Status.String() == status {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// getTicket handles GET /v1/tickets/:id
func (h *handler) getTicket(c *gin.Context) {
	ticket, err := h.svc.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// handleEvent handles POST /v1/tickets/:id/events
func (h *handler) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}

	res, err := h.svc.HandleEvent(
		c.Request.Context(), c.Param("id"), domain.EventKind(req.Kind),
		actorOf(c), req.Payload,
	)
	respond(c, res, err)
}

// adminRelease handles POST /v1/admin/tickets/:id/release
func (h *handler) adminRelease(c *gin.Context) {
	res, err := h.svc.AdminRelease(c.Request.Context(), c.Param("id"))
	respond(c, res, err)
}

// adminCancel handles POST /v1/admin/tickets/:id/cancel
func (h *handler) adminCancel(c *gin.Context) {
	res, err := h.svc.AdminCancel(c.Request.Context(), c.Param("id"))
	respond(c, res, err)
}

// reload handles POST /v1/admin/reload
func (h *handler) reload(c *gin.Context) {
	count, err := h.svc.ReloadTickets(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": count})
}

// getStats handles GET /v1/admin/stats
func (h *handler) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.svc.Stats()})
}

// respond writes the result of an event. A failed settlement still carries
// the updated ticket state along with the error.
func respond(c *gin.Context, res *escrow.EventResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"result": res})
		return
	}

	status, code := httpStatus(err)
	body := gin.H{"error": code, "message": err.Error()}
	if res != nil {
		body["result"] = res
	}
	c.AbortWithStatusJSON(status, body)
}
