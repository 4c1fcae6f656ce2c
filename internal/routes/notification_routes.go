package routes

import (
	"github.com/gofiber/fiber/v2"

	"TrainPay/internal/handlers"
	"TrainPay/internal/middleware"
)

func SetupNotificationRoutes(app *fiber.App, h *handlers.NotificationHandler) {
	notifications := app.Group("/api/notifications", middleware.Protected())

	notifications.Get("/", h.GetNotifications)
	notifications.Get("/unread-count", h.GetUnreadCount)
	notifications.Patch("/:id/read", h.MarkAsRead)
	notifications.Patch("/read-all", h.MarkAllAsRead)
	notifications.Delete("/:id", h.DeleteNotification)
}
