package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type App struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	PolicyFile  string `envconfig:"POLICY_FILE" default:"policy.yaml"`

	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	RabbitExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"booking_events"`

	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME"`

	CloudinaryURL    string `envconfig:"CLOUDINARY_URL"`
	ProofUploadDir   string `envconfig:"PROOF_UPLOAD_FOLDER" default:"payment_proofs"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `envconfig:"SERVICE_NAME" default:"studio-booking"`
	SweepSchedule    string `envconfig:"SWEEP_SCHEDULE" default:"*/1 * * * *"`
	MaturitySchedule string `envconfig:"MATURITY_SCHEDULE" default:"*/5 * * * *"`

	Policy Policy `ignored:"true"`
}

// Policy holds the business rules of the booking engine.
type Policy struct {
	DefaultFeePercent  decimal.Decimal `yaml:"default_fee_percent"`
	MinServiceFee      decimal.Decimal `yaml:"min_service_fee"`
	ReferenceEquipment string          `yaml:"reference_equipment"`

	PaymentHold        time.Duration `yaml:"payment_hold"`
	CancellationWindow time.Duration `yaml:"cancellation_window"`
	GracePeriod        time.Duration `yaml:"grace_period"`
	MaturityHold       time.Duration `yaml:"maturity_hold"`
	StrikeWindow       time.Duration `yaml:"strike_window"`
	StrikeThreshold    int           `yaml:"strike_threshold"`

	// AllowWhenNoWindows lets an instructor with no availability windows at
	// all be booked at any time.
	AllowWhenNoWindows  bool   `yaml:"allow_when_no_windows"`
	ExpiryRefundsWallet bool   `yaml:"expiry_refunds_wallet"`
	TimeZone            string `yaml:"time_zone"`
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultFeePercent:   decimal.NewFromInt(20),
		MinServiceFee:       decimal.NewFromInt(100),
		ReferenceEquipment:  "Reformer",
		PaymentHold:         15 * time.Minute,
		CancellationWindow:  24 * time.Hour,
		GracePeriod:         15 * time.Minute,
		MaturityHold:        24 * time.Hour,
		StrikeWindow:        30 * 24 * time.Hour,
		StrikeThreshold:     3,
		AllowWhenNoWindows:  true,
		ExpiryRefundsWallet: true,
		TimeZone:            "Asia/Manila",
	}
}

// Location resolves TimeZone, falling back to UTC.
func (p Policy) Location() *time.Location {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load() (App, error) {
	// A missing .env is fine, the process environment is used instead.
	_ = godotenv.Load(".env")

	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("load env config: %w", err)
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return cfg, err
	}
	cfg.Policy = policy
	return cfg, nil
}

// LoadPolicy overlays the YAML file at path onto DefaultPolicy. A missing file
// yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return policy, nil
	}
	if err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse policy file: %w", err)
	}
	if policy.StrikeThreshold <= 0 {
		return policy, fmt.Errorf("policy: strike_threshold must be positive")
	}
	return policy, nil
}
