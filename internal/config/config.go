package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configはアプリ全体の設定。起動時に一度だけ読む（リクエストから作らない）
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DBDriver    string // postgres / mysql
	DatabaseURL string // あれば最優先

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	JWTSecret string // プラットフォームのJWT署名シークレット

	GatewaySecretKey string        // 決済APIキー兼webhook署名シークレット
	GatewayBaseURL   string        // 決済APIのベースURL
	GatewayCurrency  string        // 通貨（固定）
	GatewayTimeout   time.Duration // 決済API呼び出しのタイムアウト
	PaymentMethod    string        // 注文に記録する決済手段名

	EmailAPIKey string
	EmailAPIURL string
	EmailFrom   string

	PlatformBaseURL  string // webhook URLの組み立て用
	FEURL            string // フロントURL（リダイレクト先の既定値・許可オリジン）
	NotifyHookSecret string // ステータス変更トリガーの共有シークレット

	RedisAddr    string
	AMQPURL      string
	AMQPExchange string

	MaxLineQuantity int64 // 1行あたりの数量上限
}

// Loadは環境変数から読む（.envはcmd側で読み込み済み）
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "dev")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_DB", "app")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("GATEWAY_BASE_URL", "https://pay.chargily.net/test/api/v2")
	v.SetDefault("GATEWAY_CURRENCY", "dzd")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("PAYMENT_METHOD", "chargily")
	v.SetDefault("EMAIL_API_URL", "https://api.resend.com")
	v.SetDefault("EMAIL_FROM", "orders@example.com")
	v.SetDefault("AMQP_EXCHANGE", "order.exchange")
	v.SetDefault("MAX_LINE_QUANTITY", 10000)

	cfg := Config{
		Port:  v.GetString("PORT"),
		GoEnv: v.GetString("GO_ENV"),

		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseURL: v.GetString("DATABASE_URL"),

		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),

		JWTSecret: v.GetString("JWT_SECRET"),

		GatewaySecretKey: v.GetString("GATEWAY_SECRET_KEY"),
		GatewayBaseURL:   strings.TrimRight(v.GetString("GATEWAY_BASE_URL"), "/"),
		GatewayCurrency:  v.GetString("GATEWAY_CURRENCY"),
		GatewayTimeout:   v.GetDuration("GATEWAY_TIMEOUT"),
		PaymentMethod:    v.GetString("PAYMENT_METHOD"),

		EmailAPIKey: v.GetString("EMAIL_API_KEY"),
		EmailAPIURL: strings.TrimRight(v.GetString("EMAIL_API_URL"), "/"),
		EmailFrom:   v.GetString("EMAIL_FROM"),

		PlatformBaseURL:  strings.TrimRight(v.GetString("PLATFORM_BASE_URL"), "/"),
		FEURL:            strings.TrimRight(v.GetString("FE_URL"), "/"),
		NotifyHookSecret: v.GetString("NOTIFY_HOOK_SECRET"),

		RedisAddr:    v.GetString("REDIS_ADDR"),
		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),

		MaxLineQuantity: v.GetInt64("MAX_LINE_QUANTITY"),
	}

	//必須チェック
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "mysql" {
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or mysql")
	}
	if cfg.DBDriver == "mysql" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required for mysql")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GatewaySecretKey == "" {
		return Config{}, fmt.Errorf("GATEWAY_SECRET_KEY is required")
	}
	if cfg.PlatformBaseURL == "" {
		return Config{}, fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}
	if cfg.GatewayTimeout <= 0 {
		return Config{}, fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if cfg.MaxLineQuantity < 1 {
		return Config{}, fmt.Errorf("MAX_LINE_QUANTITY must be >= 1")
	}

	return cfg, nil
}

// webhookの受信URL
func (c Config) WebhookURL() string {
	return c.PlatformBaseURL + "/webhooks/payment"
}
