package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/zenithcart/api/internal/notifications"
	"github.com/zenithcart/api/internal/payments"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/platform/config"
	pfirestore "github.com/zenithcart/api/internal/platform/firestore"
	"github.com/zenithcart/api/internal/platform/jobs"
	"github.com/zenithcart/api/internal/platform/observability"
	"github.com/zenithcart/api/internal/platform/storage"
	"github.com/zenithcart/api/internal/repositories"
	firestorerepo "github.com/zenithcart/api/internal/repositories/firestore"
	"github.com/zenithcart/api/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Users    services.UserService
	Carts    services.CartService
	Catalog  services.CatalogService
	Checkout services.CheckoutService
	Orders   services.OrderService

	// Media is nil when signed uploads are not configured.
	Media services.MediaService
}

// Container wires repositories, services and supporting infrastructure for
// runtime use.
type Container struct {
	Config        config.Config
	Logger        *zap.Logger
	Firestore     *pfirestore.Provider
	Repositories  repositories.Registry
	Services      Services
	TokenIssuer   *auth.TokenIssuer
	Authenticator *auth.Authenticator
	Gateway       payments.Provider
	Events        services.OrderEventPublisher
	Mailer        services.NotificationSender
	Metrics       *observability.Metrics

	pubsubClient  *pubsub.Client
	storageClient *cloudstorage.Client
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	gateway, err := payments.NewRazorpayProvider(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	if err != nil {
		return nil, fmt.Errorf("build payment gateway: %w", err)
	}
	c.Gateway = gateway

	var extraChecks []repositories.DependencyCheck
	if cfg.Storage.MediaBucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			c.closeQuietly(ctx)
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		c.storageClient = storageClient
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name: "media-bucket",
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(cfg.Storage.MediaBucket).Attrs(ctx)
				return err
			},
		})
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	c.Firestore = provider
	registry, err := firestorerepo.NewRegistry(provider, extraChecks...)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build repositories: %w", err)
	}
	c.Repositories = registry

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.SessionTTL)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build token issuer: %w", err)
	}
	c.TokenIssuer = issuer
	c.Authenticator = auth.NewAuthenticator(issuer)

	if cfg.SMTP.Host != "" {
		mailer, err := notifications.NewMailer(notifications.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			c.closeQuietly(ctx)
			return nil, fmt.Errorf("build mailer: %w", err)
		}
		c.Mailer = mailer
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			c.closeQuietly(ctx)
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		c.pubsubClient = client
		publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			c.closeQuietly(ctx)
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
		c.Events = publisher
	}

	svc, err := buildServices(c, cfg)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}
	c.Services = svc

	return c, nil
}

// Close releases repository clients and messaging resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.storageClient != nil {
		if err := c.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage client: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) closeQuietly(ctx context.Context) {
	if err := c.Close(ctx); err != nil {
		c.Logger.Warn("container cleanup failed", zap.Error(err))
	}
}

func buildServices(c *Container, cfg config.Config) (Services, error) {
	var svc Services
	reg := c.Repositories
	logFn := eventLogger(c.Logger, c.Metrics)
	newID := func() string { return ulid.Make().String() }

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:       reg.Users(),
		Tokens:      c.TokenIssuer,
		Mailer:      c.Mailer,
		Clock:       time.Now,
		Logger:      logFn,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = users

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		Clock:       time.Now,
		Logger:      logFn,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = carts

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:    reg.Products(),
		Clock:       time.Now,
		Logger:      logFn,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:            reg.Carts(),
		Products:         reg.Products(),
		Orders:           reg.Orders(),
		Users:            reg.Users(),
		Counters:         reg.Counters(),
		Gateway:          c.Gateway,
		Events:           c.Events,
		Mailer:           c.Mailer,
		Clock:            time.Now,
		Logger:           logFn,
		IDGenerator:      newID,
		GatewayKeyID:     cfg.Razorpay.KeyID,
		GatewayKeySecret: cfg.Razorpay.KeySecret,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	if cfg.Storage.MediaBucket != "" && cfg.Storage.SignerKeyFile != "" {
		signer, err := storage.NewServiceAccountSignerFromFile(cfg.Storage.SignerKeyFile)
		if err != nil {
			return Services{}, fmt.Errorf("build media signer: %w", err)
		}
		signingClient, err := storage.NewClient(signer)
		if err != nil {
			return Services{}, fmt.Errorf("build media signing client: %w", err)
		}
		media, err := services.NewMediaService(services.MediaServiceDeps{
			Products:    reg.Products(),
			Signer:      signingClient,
			Bucket:      cfg.Storage.MediaBucket,
			Clock:       time.Now,
			Logger:      logFn,
			IDGenerator: newID,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build media service: %w", err)
		}
		svc.Media = media
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  reg.Orders(),
		Gateway: c.Gateway,
		Events:  c.Events,
		Mailer:  c.Mailer,
		Clock:   time.Now,
		Logger:  logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	return svc, nil
}

// eventLogger adapts the zap logger to the service-layer logging contract and
// feeds checkout/order lifecycle events into the operation counter.
func eventLogger(base *zap.Logger, metrics *observability.Metrics) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		base.Info(event, zapFields...)

		if metrics == nil {
			return
		}
		if operation, _, ok := strings.Cut(event, "."); ok && (operation == "checkout" || operation == "order") {
			failed := strings.Contains(event, "failed") || strings.Contains(event, "mismatch")
			metrics.RecordOrderOperation(event, !failed)
		}
	}
}
