package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/session"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/widget"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	requestTimeout = 10 * time.Second
	outboxSize     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // editors embed the playground on arbitrary hosts
	},
}

// Handler manages WebSocket connections
type Handler struct {
	pages   *session.Manager
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(pages *session.Manager, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		pages:   pages,
		metrics: metrics,
		logger:  logger.Named("ws"),
	}
}

// HandleConnection resolves the page, upgrades, and streams until either side closes.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw := c.Param("id")
	if !id.IsValidPageID(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page id"})
		return
	}
	page, err := h.pages.Get(id.PageID(raw))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	events, unsubscribe := page.Subscribe(session.DefaultSubscriberBuffer)
	s := &stream{
		conn:    conn,
		page:    page,
		events:  events,
		outbox:  make(chan ServerMessage, outboxSize),
		stopped: make(chan struct{}),
		metrics: h.metrics,
		logger:  h.logger.ForPage(page.ID.String()),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	hello := newMessage(TypeConnected)
	hello.Page = page.ID
	s.reply(hello)

	s.readLoop(c.Request.Context())

	unsubscribe()
	s.stop()
	wg.Wait()
	_ = conn.Close()
	s.logger.Debug("websocket closed")
}

// stream is one live connection.
type stream struct {
	conn   *websocket.Conn
	page   *session.Page
	events <-chan widget.Event
	outbox chan ServerMessage

	stopOnce sync.Once
	stopped  chan struct{}

	metrics *monitoring.Metrics
	logger  *logging.Logger
}

func (s *stream) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// reply queues a frame for the writer. It gives up once the writer has stopped.
func (s *stream) reply(msg ServerMessage) {
	select {
	case s.outbox <- msg:
	case <-s.stopped:
	}
}

func (s *stream) replyError(request, format string, args ...any) {
	msg := newMessage(TypeError)
	msg.Request = request
	msg.Message = fmt.Sprintf(format, args...)
	s.reply(msg)
}

func (s *stream) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.replyError("", "malformed message")
			continue
		}
		s.metrics.RecordWSMessage("in", msg.Type)
		s.handle(ctx, msg)
	}
}

func (s *stream) handle(ctx context.Context, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch msg.Type {
	case TypePing:
		s.reply(newMessage(TypePong))

	case TypeInput:
		field, err := browser.ParseField(msg.Field)
		if err != nil {
			s.replyError(msg.Type, "%v", err)
			return
		}
		var inputErr error
		if err := s.page.Do(ctx, func(c *widget.Controller) {
			inputErr = c.Input(msg.Widget, field, msg.Value)
		}); err != nil {
			inputErr = err
		}
		s.ack(msg, inputErr)

	case TypeRun:
		var runErr error
		if err := s.page.Do(ctx, func(c *widget.Controller) {
			runErr = c.Run(msg.Widget)
		}); err != nil {
			runErr = err
		}
		s.ack(msg, runErr)

	case TypeScan:
		var initialized []id.WidgetID
		if err := s.page.Do(ctx, func(c *widget.Controller) {
			initialized = c.Scan()
		}); err != nil {
			s.replyError(msg.Type, "%v", err)
			return
		}
		reply := newMessage(TypeScanned)
		reply.Widgets = initialized
		s.reply(reply)

	default:
		s.replyError(msg.Type, "unknown message type %q", msg.Type)
	}
}

func (s *stream) ack(msg ClientMessage, err error) {
	if err != nil {
		s.replyError(msg.Type, "%v", err)
		return
	}
	reply := newMessage(TypeAck)
	reply.Request = msg.Type
	reply.Widget = msg.Widget
	s.reply(reply)
}

// writeLoop owns every write on the connection.
func (s *stream) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				// Page closed: say goodbye and unblock the reader.
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "page closed"),
					time.Now().Add(writeWait))
				_ = s.conn.Close()
				s.stop()
				return
			}
			msg := newMessage(TypeEvent)
			msg.Widget = e.Widget
			msg.Event = &e
			if !s.write(msg) {
				return
			}

		case msg := <-s.outbox:
			if !s.write(msg) {
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.fail(err)
				return
			}

		case <-s.stopped:
			return
		}
	}
}

func (s *stream) write(msg ServerMessage) bool {
	data, err := sonic.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode frame", zap.String("type", msg.Type), zap.Error(err))
		return true
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.fail(err)
		return false
	}
	s.metrics.RecordWSMessage("out", msg.Type)
	return true
}

// fail closes the connection after a write error so the reader returns too.
func (s *stream) fail(err error) {
	s.logger.Debug("websocket write failed", zap.Error(err))
	_ = s.conn.Close()
	s.stop()
}
