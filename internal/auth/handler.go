package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/pkg/response"
)

// TicketResponse is the body returned by GET /realtime/ticket.
type TicketResponse struct {
	Ticket           string `json:"ticket"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// Handler serves realtime ticket minting.
type Handler struct {
	tickets *TicketService
}

// NewHandler creates an auth handler.
func NewHandler(tickets *TicketService) *Handler {
	return &Handler{tickets: tickets}
}

// MintTicket handles GET /realtime/ticket. The ticket carries the already
// resolved identity, so the websocket endpoint never re-reads the gateway
// headers.
func (h *Handler) MintTicket(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	ticket, err := h.tickets.Mint(identity)
	if err != nil {
		response.Internal(c, "failed to mint ticket")
		return
	}
	response.OK(c, TicketResponse{
		Ticket:           ticket,
		ExpiresInSeconds: int64(h.tickets.TTL().Seconds()),
	})
}
