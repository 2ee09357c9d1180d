package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joshua-takyi/tourbook/internal/cache"
	"github.com/joshua-takyi/tourbook/internal/config"
	"github.com/joshua-takyi/tourbook/internal/events"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/metrics"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"github.com/joshua-takyi/tourbook/internal/services"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const presenceTimeout = 5 * time.Second

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	Cloudinary *cloudinary.Cloudinary
	// Infrastructure clients; Redis and AMQP may be nil
	MongoDBClient *mongo.Client
	RedisClient   *redis.Client
	AMQPConn      *amqp.Connection

	Repo      *models.MongodbRepo
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics
	Publisher events.Publisher
	Gateways  *payment.Registry

	AuthService         *services.AuthService
	RoleService         *services.RoleService
	UserService         *services.UserService
	TourService         *services.TourService
	ReviewService       *services.ReviewService
	FavouritesService   *services.FavouriteService
	NotificationService *services.NotificationService
	ChatService         *services.ChatService
	BookingService      *services.BookingService
	SettlementService   *services.SettlementService
}

// Clients bundles the connections opened in main.
type Clients struct {
	Mongo      *mongo.Client
	Redis      *redis.Client
	AMQP       *amqp.Connection
	Cloudinary *cloudinary.Cloudinary
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *slog.Logger, clients Clients) (*Container, error) {
	repo := models.MongodbNewRepo(clients.Mongo, cfg.MongoDBName, cfg.MongoDBTransactions)

	coder, err := helpers.NewOrderCoder(cfg.Settlement.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("order coder: %w", err)
	}
	tokens := helpers.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	// Without Redis the blacklist and the per-order lock only hold within
	// this process.
	var (
		blacklist cache.TokenBlacklist
		locker    cache.Locker
	)
	if clients.Redis != nil {
		blacklist = cache.NewRedisTokenBlacklist(clients.Redis)
		locker = cache.NewRedisLocker(clients.Redis, cfg.Settlement.LockTTL)
	} else {
		logger.Warn("Redis not configured, token blacklist and settlement locks are process-local")
		blacklist = cache.NewInMemoryTokenBlacklist()
		locker = cache.NewLocalLocker()
	}

	hub := realtime.NewHub(logger)
	m := metrics.New()
	upload := imageUploader(clients.Cloudinary)

	gateways := payment.NewRegistry(
		payment.NewSePay(cfg.SePay),
		payment.NewMoMo(cfg.MoMo, &http.Client{Timeout: cfg.MoMo.Timeout}),
	)
	logger.Debug("Payment gateways registered", "gateways", gateways.Names())
	ledger := services.NewCapacityLedger(repo)

	roleService := services.NewRoleService(repo, logger)
	userService := services.NewUserService(repo, repo, upload)
	notificationService := services.NewNotificationService(repo, repo, hub, logger)

	var publisher events.Publisher
	if clients.AMQP != nil {
		publisher = events.NewAMQPPublisher(clients.AMQP, logger)
	} else {
		logger.Warn("RabbitMQ not configured, booking events are handled in-process")
		publisher = events.NewLocalPublisher(notificationService.HandleBookingPaid)
	}

	c := &Container{
		Config:        cfg,
		Logger:        logger,
		Cloudinary:    clients.Cloudinary,
		MongoDBClient: clients.Mongo,
		RedisClient:   clients.Redis,
		AMQPConn:      clients.AMQP,
		Repo:          repo,
		Hub:           hub,
		Metrics:       m,
		Publisher:     publisher,
		Gateways:      gateways,

		AuthService:         services.NewAuthService(repo, repo, tokens, blacklist, logger),
		RoleService:         roleService,
		UserService:         userService,
		TourService:         services.NewTourService(repo, upload),
		ReviewService:       services.NewReviewService(repo, repo, logger),
		FavouritesService:   services.NewFavouriteService(repo, repo),
		NotificationService: notificationService,
		ChatService:         services.NewChatService(repo, repo, hub, notificationService, logger),
		BookingService: services.NewBookingService(services.BookingDeps{
			Bookings:     repo,
			Tours:        repo,
			Transactions: repo,
			Tx:           repo,
			Ledger:       ledger,
			Gateways:     gateways,
			Coder:        coder,
			Locker:       locker,
			Notifier:     notificationService,
			Logger:       logger,
		}),
		SettlementService: services.NewSettlementService(services.SettlementDeps{
			Bookings:     repo,
			Transactions: repo,
			Tx:           repo,
			Ledger:       ledger,
			Locker:       locker,
			Publisher:    publisher,
			Metrics:      m,
			Logger:       logger,
			Config:       cfg.Settlement,
		}),
	}

	hub.OnPresence(func(userID string, online bool) {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := userService.SetOnline(ctx, userID, online); err != nil {
			logger.Warn("Failed to record presence", "user_id", userID, "online", online, "error", err)
		}
	})
	hub.OnCount(m.SetConnections)

	return c, nil
}

// Init prepares the database: indexes first, then the built-in roles.
func (c *Container) Init(ctx context.Context) error {
	if err := c.Repo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	if err := c.RoleService.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	return nil
}

// BookingConsumer drains booking.paid from RabbitMQ into the notification
// service. It is nil when no broker is configured.
func (c *Container) BookingConsumer() *events.Consumer {
	if c.AMQPConn == nil {
		return nil
	}
	return events.NewConsumer(c.Config.RabbitMQURL, c.NotificationService.HandleBookingPaid, c.Logger)
}

func imageUploader(cld *cloudinary.Cloudinary) services.ImageUploader {
	if cld == nil {
		return nil
	}
	return func(ctx context.Context, images []string, folder string) ([]string, error) {
		return helpers.UploadImages(ctx, cld, images, folder)
	}
}
