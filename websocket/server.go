package websocket

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aukilabs/quadtree/models"
	"golang.org/x/net/websocket"
)

// HandleStream upgrades requests to a connection streaming the space named by
// the "id" path value. Unknown spaces are answered with HTTP 404.
func HandleStream(ctx context.Context, spaces *models.SpaceStore, newHandler func(*models.Space) Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		space, err := spaces.Get(uint32(id))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		websocket.Server{
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				h := newHandler(space)
				defer h.Close()

				Handle(ctx, conn, h)
			},
		}.ServeHTTP(w, r)
	}
}
