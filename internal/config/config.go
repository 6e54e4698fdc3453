// internal/config/config.go
// 設定模組 - 載入環境變數

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 傳輸方式
const (
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
)

// 寄件者身分策略
const (
	SenderPolicyRotateName    = "rotate_name"
	SenderPolicyTaggedAddress = "tagged_address"
)

// 樣板引擎
const (
	TemplateEnginePlaceholder = "placeholder"
	TemplateEngineLiquid      = "liquid"
)

// 支援的 SMTP 埠號
const (
	PortSubmission = 587 // 明文 + STARTTLS
	PortSMTPS      = 465 // 隱式 TLS
)

// Config 應用程式設定
type Config struct {
	// 環境
	Env      string
	LogLevel string

	// 傳輸
	Transport string

	// SMTP Relay
	SMTPHosts              []string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	SMTPHeloDomain         string
	SMTPTimeout            time.Duration
	SMTPInsecureSkipVerify bool

	// SendGrid
	SendGridAPIKey string

	// 寄件者身分
	SenderPolicy    string
	SenderEmail     string
	SenderNames     []string
	SenderDomain    string
	SenderMailbox   string
	SenderTagSecret string
	RotationEnabled bool

	// 發送節奏
	Concurrency    int
	DelaySeconds   float64
	MilestoneEvery int

	// 輸入來源
	SubjectsPath   string
	TemplatesDir   string
	TemplateName   string
	TemplateEngine string
	RecipientsPath string

	// Telegram 通知
	TelegramBotToken string
	TelegramChatID   int64

	// KeyDB 狀態快取
	KeyDBURL       string
	KeyDBPassword  string
	KeyDBStatusTTL time.Duration

	// RabbitMQ 發送結果事件
	RabbitMQURL      string
	OutcomeQueueName string

	// 狀態 API
	StatusAddr string
	JWTSecret  string

	// 本機 Capture Relay
	RelayPort           string
	RelayMaxMessageSize int // MB
}

// Load 載入設定
func Load() *Config {
	// 嘗試載入 .env 檔案 (開發環境)
	_ = godotenv.Load()

	return &Config{
		// 環境
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// 傳輸
		Transport: strings.ToLower(getEnv("TRANSPORT", TransportSMTP)),

		// SMTP Relay
		SMTPHosts:              getEnvAsSlice("SMTP_HOSTS", []string{"localhost"}),
		SMTPPort:               getEnvAsInt("SMTP_PORT", PortSubmission),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPHeloDomain:         getEnv("SMTP_HELO_DOMAIN", "localhost"),
		SMTPTimeout:            time.Duration(getEnvAsInt("SMTP_TIMEOUT_SECONDS", 30)) * time.Second,
		SMTPInsecureSkipVerify: getEnvAsBool("SMTP_INSECURE_SKIP_VERIFY", false),

		// SendGrid
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		// 寄件者身分
		SenderPolicy:    strings.ToLower(getEnv("SENDER_POLICY", SenderPolicyRotateName)),
		SenderEmail:     getEnv("SENDER_EMAIL", ""),
		SenderNames:     getEnvAsSlice("SENDER_NAMES", []string{}),
		SenderDomain:    getEnv("SENDER_DOMAIN", ""),
		SenderMailbox:   getEnv("SENDER_MAILBOX", "bounce"),
		SenderTagSecret: getEnv("SENDER_TAG_SECRET", ""),
		RotationEnabled: getEnvAsBool("ROTATION_ENABLED", true),

		// 發送節奏
		Concurrency:    getEnvAsInt("DISPATCH_CONCURRENCY", 5),
		DelaySeconds:   getEnvAsFloat("DISPATCH_DELAY_SECONDS", 1),
		MilestoneEvery: getEnvAsInt("MILESTONE_EVERY", 500),

		// 輸入來源
		SubjectsPath:   getEnv("SUBJECTS_PATH", "subjects.txt"),
		TemplatesDir:   getEnv("TEMPLATES_DIR", "letters"),
		TemplateName:   getEnv("TEMPLATE_NAME", ""),
		TemplateEngine: strings.ToLower(getEnv("TEMPLATE_ENGINE", TemplateEnginePlaceholder)),
		RecipientsPath: getEnv("RECIPIENTS_PATH", "recipients.csv"),

		// Telegram 通知
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),

		// KeyDB
		KeyDBURL:       getEnv("KEYDB_URL", ""),
		KeyDBPassword:  getEnv("KEYDB_PASSWORD", ""),
		KeyDBStatusTTL: time.Duration(getEnvAsInt("KEYDB_STATUS_TTL_HOURS", 24)) * time.Hour,

		// RabbitMQ
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		OutcomeQueueName: getEnv("OUTCOME_QUEUE_NAME", "dispatch-outcomes"),

		// 狀態 API
		StatusAddr: getEnv("STATUS_ADDR", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		// Capture Relay
		RelayPort:           getEnv("RELAY_PORT", "2525"),
		RelayMaxMessageSize: getEnvAsInt("RELAY_MAX_MESSAGE_SIZE_MB", 25),
	}
}

// Delay 回傳批次間延遲
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Validate 驗證單次發送所需的參數
func (c *Config) Validate() error {
	var errs []error

	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be > 0, got %d", c.Concurrency))
	}
	if c.DelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0, got %g", c.DelaySeconds))
	}
	if c.MilestoneEvery <= 0 {
		errs = append(errs, fmt.Errorf("milestone threshold must be > 0, got %d", c.MilestoneEvery))
	}

	switch c.Transport {
	case TransportSMTP:
		if c.SMTPPort != PortSubmission && c.SMTPPort != PortSMTPS {
			errs = append(errs, fmt.Errorf("smtp port must be %d or %d, got %d", PortSubmission, PortSMTPS, c.SMTPPort))
		}
		if len(c.SMTPHosts) == 0 {
			errs = append(errs, errors.New("at least one smtp relay host is required"))
		}
	case TransportSendGrid:
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	switch c.SenderPolicy {
	case SenderPolicyRotateName:
		if c.SenderEmail == "" {
			errs = append(errs, errors.New("sender email is required for the rotate_name policy"))
		} else if strings.Count(c.SenderEmail, "@") != 1 {
			errs = append(errs, fmt.Errorf("invalid sender email %q", c.SenderEmail))
		}
		if len(c.SenderNames) == 0 {
			errs = append(errs, errors.New("at least one sender name is required"))
		}
	case SenderPolicyTaggedAddress:
		domain := strings.TrimSpace(c.SenderDomain)
		switch {
		case domain == "":
			errs = append(errs, errors.New("sender domain is required for the tagged_address policy"))
		case strings.Contains(domain, "@"):
			errs = append(errs, errors.New("sender domain must not contain @"))
		case !strings.Contains(domain, "."):
			errs = append(errs, fmt.Errorf("invalid sender domain %q", domain))
		}
		if c.SenderMailbox == "" {
			errs = append(errs, errors.New("sender mailbox is required for the tagged_address policy"))
		}
		if len(c.SenderNames) == 0 {
			errs = append(errs, errors.New("a sender name is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sender policy %q", c.SenderPolicy))
	}

	switch c.TemplateEngine {
	case TemplateEnginePlaceholder, TemplateEngineLiquid:
	default:
		errs = append(errs, fmt.Errorf("unknown template engine %q", c.TemplateEngine))
	}

	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}

	return errors.Join(errs...)
}

// getEnv 取得環境變數，若不存在則回傳預設值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 取得環境變數並轉換為整數
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsInt64 取得環境變數並轉換為 int64
func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat 取得環境變數並轉換為浮點數
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool 取得環境變數並轉換為布林值
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvAsSlice 取得環境變數並轉換為字串切片（以逗號分隔）
func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return SplitList(value)
	}
	return defaultValue
}

// SplitList 以逗號分隔字串並移除空白項目
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
