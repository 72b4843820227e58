package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/farellandr/rifa/config"
	"github.com/farellandr/rifa/internal/events"
	"github.com/farellandr/rifa/internal/handlers"
	"github.com/farellandr/rifa/internal/helpers"
	"github.com/farellandr/rifa/internal/middleware"
	"github.com/farellandr/rifa/internal/notify"
	"github.com/farellandr/rifa/internal/obs"
	"github.com/farellandr/rifa/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	Engine    *services.Engine
	Signer    *helpers.ReceiptSigner
	JWTSecret string
	Limiter   *middleware.IPRateLimiter

	// TrustedProxies may set X-Forwarded-For. Empty means the client IP is
	// always the remote address.
	TrustedProxies []string
}

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	shutdown := obs.InitTracer("rifa", cfg.OTLPEndpoint)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("[otel] shutdown: %v", err)
		}
	}()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	engine, closeEngine, err := BuildEngine(cfg, db)
	if err != nil {
		return err
	}
	defer closeEngine()

	r := gin.Default()

	if err := SetupRoutes(r, Deps{
		Engine:         engine,
		Signer:         helpers.NewReceiptSigner(cfg.ReceiptSecret),
		JWTSecret:      cfg.JWTSecret,
		Limiter:        middleware.NewIPRateLimiter(cfg.IPRatePerMinute),
		TrustedProxies: cfg.TrustedProxies,
	}); err != nil {
		return fmt.Errorf("failed to set up routes: %v", err)
	}

	return r.Run(":" + cfg.Port)
}

// BuildEngine wires the payment provider and the optional event and alert
// sinks. The returned func releases them.
func BuildEngine(cfg *config.Config, db *gorm.DB) (*services.Engine, func(), error) {
	collaborator, err := config.NewCollaborator(cfg)
	if err != nil {
		return nil, nil, err
	}

	engine := services.NewEngine(db, collaborator, services.Settings{
		WebhookSecret:       cfg.MPWebhookSecret,
		XenditCallbackToken: cfg.XenditCallbackToken,
		Currency:            cfg.MPCurrency,
		PublicBaseURL:       cfg.PublicBaseURL,
		PublicKey:           cfg.MPPublicKey,
	})

	cleanup := func() {}
	if cfg.RabbitURL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			log.Printf("[events] disabled: %v", err)
		} else {
			engine.Events = publisher
			cleanup = func() { _ = publisher.Close() }
		}
	}

	engine.Notifier = notify.Log{}
	if cfg.TelegramToken != "" {
		bot, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramAdminChatID)
		if err != nil {
			log.Printf("[notify] telegram disabled: %v", err)
		} else {
			engine.Notifier = bot
		}
	}

	return engine, cleanup, nil
}

func SetupRoutes(r *gin.Engine, deps Deps) error {
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return err
	}

	r.Use(middleware.EngineMiddleware(deps.Engine))
	r.Use(middleware.ReceiptMiddleware(deps.Signer))
	r.Use(middleware.TokenSecretMiddleware(deps.JWTSecret))

	limited := middleware.RateLimitMiddleware(deps.Limiter)

	public := r.Group("")
	{
		public.GET("/", handlers.RaffleDetail)
		public.GET("/api/grid", handlers.GridPage)
		public.GET("/api/check", handlers.CheckNumber)

		public.POST("/mp/create_preference", handlers.CreatePreference)
		public.POST("/mp/create_donation_preference", handlers.CreateDonationPreference)
		public.POST("/webhook/mercadopago", handlers.MercadoPagoWebhook)
		public.POST("/webhook/xendit", handlers.XenditWebhook)

		public.POST("/transfer/reserve", limited, handlers.TransferReserve)
		public.POST("/transfer/reserve_from_failed", limited, handlers.ReserveFromFailedPayment)

		public.GET("/tickets/receipt/:ref/qr", handlers.GenerateReceiptQR)
		public.POST("/staff/login", handlers.StaffLogin)
	}

	protected := r.Group("")
	protected.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
	{
		protected.GET("/export/raffle/:id/tickets.csv", handlers.ExportTicketsCSV)
		protected.GET("/export/raffle/:id/payments.csv", handlers.ExportPaymentsCSV)

		staff := protected.Group("/staff")
		{
			staff.POST("/payments/settle", handlers.SettlePayments)
			staff.POST("/tickets/validate", handlers.ValidateReceipt)

			staff.GET("/raffles", handlers.ListRaffles)
			staff.POST("/raffles", handlers.CreateRaffle)
			staff.PUT("/raffles/:id", handlers.UpdateRaffle)
			staff.DELETE("/raffles/:id", handlers.DeleteRaffle)
			staff.POST("/raffles/:id/activate", handlers.ActivateRaffle)
		}
	}

	return nil
}
