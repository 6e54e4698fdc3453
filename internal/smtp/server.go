// internal/smtp/server.go
// Capture Relay - 接收並記錄郵件的本機 SMTP 伺服器 (試發送、測試使用)

package smtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

// 預設保留的最近郵件數量
const defaultKeep = 1000

// Options Capture Relay 設定
type Options struct {
	Addr            string
	Domain          string
	MaxMessageBytes int64
	MaxRecipients   int
	Keep            int                     // 記憶體中保留的郵件數量
	Reject          func(rcpt string) error // 可選，回傳錯誤時拒絕該收件人
	TLSConfig       *tls.Config             // 設定後提供 STARTTLS
}

// Server Capture Relay 伺服器
type Server struct {
	opts       Options
	log        zerolog.Logger
	smtpServer *gosmtp.Server

	mu       sync.Mutex
	messages []Message
}

// NewServer 建立 Capture Relay
func NewServer(opts Options, log zerolog.Logger) *Server {
	if opts.Domain == "" {
		opts.Domain = "mail-dispatch.local"
	}
	if opts.Keep <= 0 {
		opts.Keep = defaultKeep
	}
	if opts.MaxRecipients <= 0 {
		opts.MaxRecipients = 50
	}

	s := &Server{opts: opts, log: log.With().Str("component", "relay").Logger()}

	// 設定 SMTP 伺服器
	s.smtpServer = gosmtp.NewServer(NewBackend(s))
	s.smtpServer.Addr = opts.Addr
	s.smtpServer.Domain = opts.Domain
	s.smtpServer.ReadTimeout = 30 * time.Second
	s.smtpServer.WriteTimeout = 30 * time.Second
	s.smtpServer.MaxMessageBytes = opts.MaxMessageBytes
	s.smtpServer.MaxRecipients = opts.MaxRecipients
	s.smtpServer.AllowInsecureAuth = true
	s.smtpServer.TLSConfig = opts.TLSConfig

	return s
}

// Start 啟動伺服器（阻塞式）
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.opts.Addr).Int64("max_message_bytes", s.opts.MaxMessageBytes).Msg("capture relay listening")

	if err := s.smtpServer.ListenAndServe(); err != nil {
		return fmt.Errorf("SMTP server error: %w", err)
	}
	return nil
}

// Serve 使用既有的 listener 啟動伺服器（阻塞式）
func (s *Server) Serve(l net.Listener) error {
	return s.smtpServer.Serve(l)
}

// Shutdown 關閉伺服器
func (s *Server) Shutdown() error {
	if s.smtpServer != nil {
		s.log.Info().Msg("capture relay shutting down")
		return s.smtpServer.Close()
	}
	return nil
}

// Messages 回傳目前保留的郵件副本
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Server) record(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	if over := len(s.messages) - s.opts.Keep; over > 0 {
		s.messages = append([]Message(nil), s.messages[over:]...)
	}
	s.mu.Unlock()

	s.log.Info().
		Str("from", m.From).
		Strs("to", m.To).
		Str("subject", m.Subject).
		Str("header_from", m.HeaderFrom).
		Int("size", m.Size).
		Bool("tls", m.TLS).
		Msg("message captured")
}
