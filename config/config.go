package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/farellandr/rifa/internal/gateway"
	"github.com/farellandr/rifa/internal/models"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"rifa"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	ReceiptSecret string `envconfig:"RECEIPT_SECRET"`

	PaymentProvider     string        `envconfig:"PAYMENT_PROVIDER" default:"mercadopago"`
	MPAccessToken       string        `envconfig:"MP_ACCESS_TOKEN"`
	MPPublicKey         string        `envconfig:"MP_PUBLIC_KEY"`
	MPWebhookSecret     string        `envconfig:"MP_WEBHOOK_SECRET"`
	MPCurrency          string        `envconfig:"MP_CURRENCY" default:"CLP"`
	PublicBaseURL       string        `envconfig:"MP_PUBLIC_BASE_URL"`
	MPAPIBaseURL        string        `envconfig:"MP_API_BASE_URL" default:"https://api.mercadopago.com"`
	XenditSecretKey     string        `envconfig:"XENDIT_SECRET_KEY"`
	XenditCallbackToken string        `envconfig:"XENDIT_CALLBACK_TOKEN"`
	GatewayTimeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"20s"`

	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"rifa.events"`

	TelegramToken       string `envconfig:"TELEGRAM_TOKEN"`
	TelegramAdminChatID int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	IPRatePerMinute int      `envconfig:"IP_RATE_PER_MINUTE" default:"10"`
	TrustedProxies  []string `envconfig:"TRUSTED_PROXIES"`

	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.ReceiptSecret == "" {
		cfg.ReceiptSecret = cfg.JWTSecret
	}
	return &cfg, nil
}

// NewCollaborator picks the payment provider named by PAYMENT_PROVIDER.
func NewCollaborator(cfg *Config) (gateway.Collaborator, error) {
	switch strings.ToLower(cfg.PaymentProvider) {
	case models.GatewayMercadoPago:
		if cfg.MPAccessToken == "" {
			log.Println("[config] MP_ACCESS_TOKEN is empty; orders will be rejected by MercadoPago")
		}
		return gateway.NewMercadoPago(cfg.MPAccessToken, cfg.MPAPIBaseURL, cfg.GatewayTimeout), nil
	case models.GatewayXendit:
		return gateway.NewXendit(cfg.XenditSecretKey), nil
	case models.GatewayMock:
		return gateway.NewMock(), nil
	}
	return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, err
	}

	seedRoles(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	for _, name := range []string{models.RoleStaff, models.RoleAdmin} {
		var existingRole models.Role
		result := db.Where("name = ?", name).First(&existingRole)
		if result.Error != nil {
			if err := db.Create(&models.Role{Name: name}).Error; err != nil {
				log.Printf("[config] seed role %s: %v", name, err)
			}
		}
	}
}
