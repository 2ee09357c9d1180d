package routes

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/container"
	"github.com/joshua-takyi/tourbook/internal/handlers"
	"github.com/joshua-takyi/tourbook/internal/middleware"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	origins := allowedOrigins(cfg.FrontendURL)

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger, container.Metrics))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(container.Metrics.Handler()))

	cookies := handlers.CookieOptions{Secure: cfg.IsProduction()}
	auth := middleware.AuthMiddleware(container.AuthService, container.Logger)
	perm := middleware.RequirePermission

	// API version 1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.RateLimit, container.RedisClient, container.Logger))

	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"service": "tourbook-api",
		})
	})

	users := v1.Group("/users")
	{
		users.POST("/signup", handlers.Signup(container.AuthService, cookies))
		users.POST("/login", handlers.Login(container.AuthService, cookies))
		users.PATCH("/refresh-token", handlers.RefreshToken(container.AuthService, cookies))

		me := users.Group("", auth)
		me.POST("/logout", handlers.Logout(container.AuthService, cookies))
		me.PATCH("/update-my-password", handlers.UpdatePassword(container.AuthService, cookies))
		me.GET("/me", handlers.GetMe(container.UserService))
		me.PATCH("/me", handlers.UpdateMe(container.UserService))
		me.DELETE("/me", perm(models.PermDeleteMe), handlers.DeleteMe(container.UserService))
		me.POST("/me/photo", handlers.UploadMyPhoto(container.UserService))

		admin := me.Group("", perm(models.PermManageUsers))
		admin.GET("", handlers.ListUsers(container.UserService))
		admin.GET("/:id", handlers.GetUser(container.UserService))
		admin.PATCH("/:id", handlers.UpdateUser(container.UserService))
		admin.DELETE("/:id", handlers.DeleteUser(container.UserService))
	}

	tours := v1.Group("/tours")
	{
		tours.GET("", handlers.ListTours(container.TourService))
		tours.GET("/top-5-cheap", handlers.TopCheapTours(container.TourService))
		tours.GET("/search/:key", handlers.SearchTours(container.TourService))
		tours.GET("/tour-stats", handlers.TourStats(container.TourService))
		tours.GET("/within/:distance/center/:latlng/unit/:unit", handlers.ToursWithin(container.TourService))
		tours.GET("/distances/:latlng/unit/:unit", handlers.TourDistances(container.TourService))
		tours.GET("/monthly-plan/:year", auth, perm(models.PermViewStats), handlers.MonthlyPlan(container.TourService))
		tours.GET("/:id", handlers.GetTour(container.TourService))
		tours.GET("/:id/reviews", handlers.ListReviews(container.ReviewService))
		tours.POST("/:id/reviews", auth, handlers.CreateReview(container.ReviewService))

		manage := tours.Group("", auth, perm(models.PermManageTours))
		manage.POST("", handlers.CreateTour(container.TourService))
		manage.PATCH("/:id", handlers.UpdateTour(container.TourService))
		manage.DELETE("/:id", handlers.DeleteTour(container.TourService))
	}

	reviews := v1.Group("/reviews", auth)
	{
		reviews.PATCH("/:id", handlers.UpdateReview(container.ReviewService))
		reviews.DELETE("/:id", handlers.DeleteReview(container.ReviewService))
	}

	bookings := v1.Group("/bookings")
	{
		// Gateways authenticate with their own credentials, not a user token.
		bookings.POST("/webhook/sepay", webhook(container, payment.GatewaySePay))
		bookings.POST("/webhook/momo", webhook(container, payment.GatewayMoMo))

		mine := bookings.Group("", auth)
		mine.POST("/checkout", handlers.Checkout(container.BookingService))
		mine.POST("/transaction-status", handlers.TransactionStatus(container.BookingService))
		mine.GET("/me", handlers.MyBookings(container.BookingService))

		manage := mine.Group("", perm(models.PermManageBookings))
		manage.GET("", handlers.ListBookings(container.BookingService))
		manage.GET("/stats/:kind", handlers.BookingStats(container.BookingService))
		manage.GET("/:id", handlers.GetBooking(container.BookingService))
		manage.PATCH("/:id", handlers.UpdateBooking(container.BookingService))
		manage.DELETE("/:id", handlers.DeleteBooking(container.BookingService))
		manage.POST("/:id/cancel", handlers.CancelBooking(container.BookingService))
		manage.POST("/:id/refund", handlers.RefundBooking(container.BookingService))
	}

	v1.GET("/transactions", auth, perm(models.PermManageBookings), handlers.ListTransactions(container.BookingService))

	roles := v1.Group("", auth, perm(models.PermManageRoles))
	{
		roles.GET("/roles", handlers.ListRoles(container.RoleService))
		roles.POST("/roles", handlers.CreateRole(container.RoleService))
		roles.DELETE("/roles/:id", handlers.DeleteRole(container.RoleService))
		roles.POST("/roles/:id/permissions", handlers.AddPermission(container.RoleService))
		roles.DELETE("/roles/:id/permissions/:perm", handlers.RemovePermission(container.RoleService))
		roles.GET("/permissions", handlers.ListPermissions(container.RoleService))
	}

	favourites := v1.Group("/favourites", auth)
	{
		favourites.GET("", handlers.GetUserFavourites(container.FavouritesService))
		favourites.POST("", handlers.AddToFavourites(container.FavouritesService))
		favourites.DELETE("/:tourId", handlers.RemoveFromFavourite(container.FavouritesService))
	}

	notifications := v1.Group("/notifications", auth)
	{
		notifications.GET("", handlers.ListNotifications(container.NotificationService))
		notifications.POST("", perm(models.PermSendNotifications), handlers.CreateNotification(container.NotificationService))
		notifications.POST("/broadcast", perm(models.PermSendNotifications), handlers.BroadcastNotification(container.NotificationService))
		notifications.PATCH("/mark-all-as-read", handlers.MarkAllNotificationsRead(container.NotificationService))
		notifications.PATCH("/:id", handlers.MarkNotificationRead(container.NotificationService))
		notifications.DELETE("/:id", handlers.DeleteNotification(container.NotificationService))
		notifications.DELETE("", handlers.DeleteAllNotifications(container.NotificationService))
	}

	messages := v1.Group("/messages", auth)
	{
		messages.GET("/conversations", handlers.ListConversations(container.ChatService))
		messages.GET("/:otherUserId", handlers.ListMessages(container.ChatService))
		messages.PATCH("/:otherUserId/seen", handlers.MarkMessagesSeen(container.ChatService))
		messages.POST("", handlers.SendMessage(container.ChatService))
	}

	v1.GET("/ws", handlers.ServeWS(container.Hub, container.AuthService, container.ChatService, origins, container.Logger))

	return r
}

func webhook(c *container.Container, name string) gin.HandlerFunc {
	g, err := c.Gateways.Get(name)
	if err != nil {
		// Both gateways are registered by the container.
		panic(err)
	}
	return handlers.PaymentWebhook(g, c.SettlementService, c.Logger)
}

// allowedOrigins splits FRONTEND_URL on commas so several frontends can be
// allowed at once.
func allowedOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
