package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Transport:      TransportSMTP,
		SMTPHosts:      []string{"relay-a.example.com"},
		SMTPPort:       PortSubmission,
		SenderPolicy:   SenderPolicyRotateName,
		SenderEmail:    "news@example.com",
		SenderNames:    []string{"Newsletter"},
		Concurrency:    5,
		DelaySeconds:   1,
		MilestoneEvery: 500,
		TemplateEngine: TemplateEnginePlaceholder,
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("SMTP_HOSTS", "relay-a.example.com, relay-b.example.com,,")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("DISPATCH_CONCURRENCY", "12")
	t.Setenv("DISPATCH_DELAY_SECONDS", "0.25")
	t.Setenv("ROTATION_ENABLED", "false")
	t.Setenv("SENDER_NAMES", "Alice,Bob")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg := Load()

	assert.Equal(t, []string{"relay-a.example.com", "relay-b.example.com"}, cfg.SMTPHosts)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay())
	assert.False(t, cfg.RotationEnabled)
	assert.Equal(t, []string{"Alice", "Bob"}, cfg.SenderNames)
	assert.Equal(t, int64(-100123), cfg.TelegramChatID)
	assert.Equal(t, 500, cfg.MilestoneEvery)
}

func TestValidate_Accepts(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tagged := validConfig()
	tagged.SenderPolicy = SenderPolicyTaggedAddress
	tagged.SenderEmail = ""
	tagged.SenderDomain = "example.com"
	tagged.SenderMailbox = "bounce"
	require.NoError(t, tagged.Validate())

	sg := validConfig()
	sg.Transport = TransportSendGrid
	sg.SMTPHosts = nil
	sg.SMTPPort = 0
	sg.SendGridAPIKey = "SG.key"
	require.NoError(t, sg.Validate())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, errMsg: "concurrency must be > 0"},
		{name: "negative delay", mutate: func(c *Config) { c.DelaySeconds = -1 }, errMsg: "delay must be >= 0"},
		{name: "unsupported port", mutate: func(c *Config) { c.SMTPPort = 25 }, errMsg: "smtp port must be 587 or 465"},
		{name: "no hosts", mutate: func(c *Config) { c.SMTPHosts = nil }, errMsg: "at least one smtp relay host"},
		{name: "no sender names", mutate: func(c *Config) { c.SenderNames = nil }, errMsg: "at least one sender name"},
		{name: "bad sender email", mutate: func(c *Config) { c.SenderEmail = "nobody" }, errMsg: "invalid sender email"},
		{name: "domain with at", mutate: func(c *Config) {
			c.SenderPolicy = SenderPolicyTaggedAddress
			c.SenderDomain = "@example.com"
			c.SenderMailbox = "bounce"
		}, errMsg: "must not contain @"},
		{name: "domain without dot", mutate: func(c *Config) {
			c.SenderPolicy = SenderPolicyTaggedAddress
			c.SenderDomain = "localhost"
			c.SenderMailbox = "bounce"
		}, errMsg: "invalid sender domain"},
		{name: "unknown policy", mutate: func(c *Config) { c.SenderPolicy = "random" }, errMsg: "unknown sender policy"},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "pigeon" }, errMsg: "unknown transport"},
		{name: "telegram without chat", mutate: func(c *Config) { c.TelegramBotToken = "123:abc" }, errMsg: "TELEGRAM_CHAT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ,, b ,"))
	assert.Empty(t, SplitList(""))
}
