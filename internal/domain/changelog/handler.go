package changelog

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"assetvault/internal/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	changes := r.Group("/changes")
	{
		changes.GET("", h.List)
		changes.GET("/ws", h.Feed)
	}
}

// List godoc
// @Summary List changelog entries after a cursor
// @Tags Changes
// @Produce json
// @Param cursor query string false "createdAt:id cursor, empty for the beginning"
// @Param folder query string false "restrict to one folder path"
// @Param limit query int false "page size"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /changes [get]
func (h *Handler) List(c *gin.Context) {
	cursor, err := ParseCursor(c.Query("cursor"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.page(c.Request.Context(), c.Query("folder"), cursor, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list changes")
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"entries":     page.Entries,
		"next_cursor": page.NextCursor.String(),
	})
}

func (h *Handler) page(ctx context.Context, folder string, cursor Cursor, limit int) (*Page, error) {
	if folder != "" {
		return h.service.ListForFolder(ctx, folder, cursor, limit)
	}
	return h.service.ListSince(ctx, cursor, limit)
}

// Feed godoc
// @Summary Live changelog feed over WebSocket
// @Description Streams pages of entries after the cursor, then new pages as they are committed.
// @Tags Changes
// @Param cursor query string false "createdAt:id cursor"
// @Param folder query string false "restrict to one folder path"
// @Router /changes/ws [get]
func (h *Handler) Feed(c *gin.Context) {
	cursor, err := ParseCursor(c.Query("cursor"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	folder := c.Query("folder")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("changelog websocket upgrade failed")
		return
	}
	defer conn.Close()

	signals, unsubscribe := h.service.Notifier().Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ctx := c.Request.Context()
	flush := func() error {
		for {
			page, err := h.page(ctx, folder, cursor, DefaultLimit)
			if err != nil {
				return err
			}
			if len(page.Entries) == 0 {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(gin.H{"entries": page.Entries, "next_cursor": page.NextCursor.String()}); err != nil {
				return err
			}
			cursor = page.NextCursor
			if len(page.Entries) < DefaultLimit {
				return nil
			}
		}
	}

	if err := flush(); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-signals:
			if err := flush(); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are
// processed; it closes done when the peer goes away.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
