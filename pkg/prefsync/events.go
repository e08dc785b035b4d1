package prefsync

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orgbook/prefsync/pkg/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is same-host only behind the identity proxy; the browser
	// origin check adds nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

const eventWriteTimeout = 10 * time.Second

// handleEvents streams change notifications over a websocket. Each bus
// event becomes one JSON message {"topic": "..."} telling the UI which
// preference list to re-render. Delivery is best effort: a client that
// cannot keep up has events dropped rather than blocking publishers, and
// a dropped event only costs an extra refresh on the next one.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	notify := make(chan bus.Topic, 16)
	forward := func(topic bus.Topic) func() {
		return func() {
			select {
			case notify <- topic:
			default:
			}
		}
	}
	defer a.bus.Subscribe(bus.SavedFiltersChanged, forward(bus.SavedFiltersChanged))()
	defer a.bus.Subscribe(bus.FavoritesChanged, forward(bus.FavoritesChanged))()

	// Drain the read side so close frames are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case topic := <-notify:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(map[string]string{"topic": string(topic)}); err != nil {
				return
			}
		}
	}
}
