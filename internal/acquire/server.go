package acquire

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler mounts the channel on "/" (what the extension dials) and "/ws".
func Handler(ch *Channel) http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/", gin.WrapH(ch))
	g.GET("/ws", gin.WrapH(ch))
	return g
}

// NewServer returns an HTTP server for the extension endpoint. The caller starts it.
// Write and read timeouts are left unset: connections are long lived.
func NewServer(addr string, ch *Channel) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(ch),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
