package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bounteer/restream/internal/session"
)

const writeWait = 10 * time.Second

// Endpoint bridges one websocket connection to one session's delivery
// channel, forwarding messages in sequence order until the channel closes.
type Endpoint struct {
	store    *session.Store
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewEndpoint(store *session.Store, log zerolog.Logger) *Endpoint {
	return &Endpoint{
		store: store,
		upgrader: websocket.Upgrader{
			// The trigger API hands the stream URL to arbitrary test
			// drivers; there is no browser origin to defend.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (e *Endpoint) Register(ec *echo.Echo) {
	ec.GET("/ws/:session_id", e.handleStream)
}

func (e *Endpoint) handleStream(c echo.Context) error {
	id := c.Param("session_id")
	sess, ok := e.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	conn, err := e.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return nil
	}
	defer conn.Close()

	log := e.log.With().Str("session_id", id).Logger()

	delivery, ok := sess.Attach()
	if !ok {
		log.Warn().Msg("rejecting second consumer")
		e.writeClose(conn, websocket.ClosePolicyViolation, "session already attached")
		return nil
	}
	defer sess.Detach()

	// The peer never sends data frames; reading is how we notice it going
	// away before the replay finishes.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("consumer attached")

	for {
		select {
		case msg, ok := <-delivery:
			if !ok {
				// Session completed or failed; either way the stream is over.
				e.writeClose(conn, websocket.CloseNormalClosure, "")
				log.Info().Msg("stream finished")
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Warn().Err(err).Int("seq", msg.Seq).Msg("forward failed")
				return nil
			}
		case <-peerGone:
			// The replay keeps running; only forwarding stops.
			log.Info().Msg("peer disconnected")
			return nil
		}
	}
}

func (e *Endpoint) writeClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
