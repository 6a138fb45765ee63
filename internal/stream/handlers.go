package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:district", websocket.New(func(c *websocket.Conn) {
		district := c.Params("district")
		listener := hub.Register(district)
		defer hub.Unregister(listener)

		done := make(chan struct{})
		go func() {
			for msg := range listener.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		<-done
	}))
}
