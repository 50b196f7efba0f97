package statushttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"conductor/internal/connector"
	"conductor/internal/market"
	"conductor/internal/store"

	"github.com/gin-gonic/gin"
)

type StatusSource interface {
	Status() connector.Status
}

type PositionSource interface {
	GetPositions(ctx context.Context) ([]market.Position, error)
	ClosedPositions(ctx context.Context, symbols []market.Symbol, since time.Time) ([]market.Position, error)
}

type AccountSource interface {
	Account(ctx context.Context) (market.Account, error)
}

type EventSource interface {
	ListEvents(ctx context.Context, positionID string, limit int) ([]store.OrderEvent, error)
}

const (
	defaultBarLimit   = 100
	defaultEventLimit = 50
)

// Router exposes the connector state under /api.
type Router struct {
	status    StatusSource
	positions PositionSource
	account   AccountSource
	events    EventSource
}

func NewRouter(status StatusSource, positions PositionSource, account AccountSource, events EventSource) *Router {
	return &Router{status: status, positions: positions, account: account, events: events}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/bars", r.handleBars)
	if r.positions != nil {
		group.GET("/positions", r.handlePositions)
	}
	if r.account != nil {
		group.GET("/account", r.handleAccount)
	}
	if r.events != nil {
		group.GET("/events", r.handleEvents)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	st := r.status.Status()
	resp := gin.H{"status": st}
	if bar, ok := st.LastBar(); ok {
		resp["last_bar"] = bar
	}
	c.JSON(http.StatusOK, resp)
}

// handleBars returns the newest bars, optionally for one symbol.
func (r *Router) handleBars(c *gin.Context) {
	limit := queryInt(c, "limit", defaultBarLimit)
	symbol := strings.TrimSpace(c.Query("symbol"))
	tail := r.status.Status().Tail
	bars := make([]market.OHLC, 0, len(tail))
	for _, b := range tail {
		if symbol != "" && !strings.EqualFold(b.Symbol.Name, symbol) {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"bars": bars, "count": len(bars)})
}

// handlePositions lists reconciled open positions, or closed ones with
// ?status=closed&since=RFC3339.
func (r *Router) handlePositions(c *gin.Context) {
	ctx := c.Request.Context()
	switch strings.ToLower(strings.TrimSpace(c.DefaultQuery("status", "open"))) {
	case "open":
		list, err := r.positions.GetPositions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": list})
	case "closed":
		var since time.Time
		if raw := strings.TrimSpace(c.Query("since")); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			since = ts
		}
		list, err := r.positions.ClosedPositions(ctx, nil, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": list})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
	}
}

func (r *Router) handleAccount(c *gin.Context) {
	acct, err := r.account.Account(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acct)
}

type eventView struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	PositionID string          `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Position   market.Position `json:"position"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (r *Router) handleEvents(c *gin.Context) {
	list, err := r.events.ListEvents(c.Request.Context(), strings.TrimSpace(c.Query("position_id")), queryInt(c, "limit", defaultEventLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]eventView, 0, len(list))
	for _, ev := range list {
		out = append(out, eventView{
			ID:         ev.ID,
			Name:       ev.Name,
			PositionID: ev.PositionID,
			Symbol:     ev.Symbol,
			Position:   ev.Payload,
			CreatedAt:  ev.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
