// internal/services/smtp_service.go
// SMTP Relay 郵件發送服務

package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/models"
)

// Security SMTP 連線安全模式
type Security int

const (
	// SecurityStartTLS 明文連線，伺服器支援時升級為 TLS
	SecurityStartTLS Security = iota
	// SecurityTLS 隱式 TLS
	SecurityTLS
)

func (s Security) String() string {
	if s == SecurityTLS {
		return "tls"
	}
	return "starttls"
}

// SecurityForPort 465 使用隱式 TLS，其餘使用 STARTTLS
func SecurityForPort(port int) Security {
	if port == config.PortSMTPS {
		return SecurityTLS
	}
	return SecurityStartTLS
}

// SMTPOptions SMTP 傳輸設定
type SMTPOptions struct {
	Host               string
	Port               int
	Security           Security
	Username           string
	Password           string
	HeloDomain         string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Log                zerolog.Logger
}

// SMTPOptionsFrom 由應用程式設定建立單一主機的 SMTP 設定
func SMTPOptionsFrom(cfg *config.Config, host string, log zerolog.Logger) SMTPOptions {
	return SMTPOptions{
		Host:               host,
		Port:               cfg.SMTPPort,
		Security:           SecurityForPort(cfg.SMTPPort),
		Username:           cfg.SMTPUsername,
		Password:           cfg.SMTPPassword,
		HeloDomain:         cfg.SMTPHeloDomain,
		Timeout:            cfg.SMTPTimeout,
		InsecureSkipVerify: cfg.SMTPInsecureSkipVerify,
		Log:                log,
	}
}

// SMTPService 透過單一 SMTP Relay 發送郵件
// 實作 MailSender interface，每封郵件使用獨立連線，可同時被多個 goroutine 使用
type SMTPService struct {
	opts SMTPOptions
	addr string
	tls  *tls.Config
}

// NewSMTPService 建立 SMTP 傳輸
func NewSMTPService(opts SMTPOptions) (*SMTPService, error) {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		return nil, errors.New("smtp host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid smtp port %d", opts.Port)
	}
	if opts.Password != "" && opts.Username == "" {
		return nil, errors.New("smtp password set without username")
	}
	if opts.HeloDomain == "" {
		opts.HeloDomain = "localhost"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.Host = host

	return &SMTPService{
		opts: opts,
		addr: net.JoinHostPort(host, strconv.Itoa(opts.Port)),
		tls: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}, nil
}

// NewSMTPFactory 回傳依設定為每個主機建立 SMTP 傳輸的 TransportFactory
func NewSMTPFactory(cfg *config.Config, log zerolog.Logger) TransportFactory {
	return func(host string) (MailSender, error) {
		return NewSMTPService(SMTPOptionsFrom(cfg, host, log))
	}
}

// Name 回傳服務名稱
func (s *SMTPService) Name() string {
	return "SMTP " + s.addr
}

// SendMail 發送郵件 (連線、EHLO、STARTTLS、AUTH、MAIL/RCPT/DATA、QUIT)
func (s *SMTPService) SendMail(ctx context.Context, msg *models.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := BuildMessage(msg, s.opts.HeloDomain)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}
	defer c.Close()

	c.CommandTimeout = s.opts.Timeout
	c.SubmissionTimeout = s.opts.Timeout

	if err := c.Hello(s.opts.HeloDomain); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if s.opts.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(sasl.NewPlainClient("", s.opts.Username, s.opts.Password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.SendMail(msg.FromAddress, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}

	// DATA 已被接受，QUIT 失敗不影響寄送結果
	if err := c.Quit(); err != nil {
		s.opts.Log.Warn().Err(err).Str("host", s.addr).Msg("smtp quit failed after delivery")
	}
	return nil
}

// connect 建立 SMTP 連線
// 465 使用隱式 TLS；其他埠先嘗試 STARTTLS，伺服器不支援時重新連線並以明文繼續
func (s *SMTPService) connect(ctx context.Context) (*gosmtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.opts.Timeout}

	if s.opts.Security == SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tls}
		conn, err := tlsDialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return nil, err
		}
		return gosmtp.NewClient(conn), nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	c, err := gosmtp.NewClientStartTLS(conn, s.tls)
	if err == nil {
		return c, nil
	}
	if !isStartTLSUnsupported(err) {
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}

	conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	return gosmtp.NewClient(conn), nil
}

// isStartTLSUnsupported 判斷是否為伺服器未提供 STARTTLS 的錯誤
func isStartTLSUnsupported(err error) bool {
	return strings.Contains(err.Error(), "doesn't support STARTTLS")
}

// BuildMessage 建立 RFC 5322 郵件內容 (text/html, quoted-printable)
func BuildMessage(msg *models.OutgoingMessage, hostname string) ([]byte, error) {
	if msg.FromAddress == "" {
		return nil, errors.New("from address is empty")
	}
	if msg.To == "" {
		return nil, errors.New("recipient is empty")
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.FromAddress}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if hostname == "" {
		hostname = "localhost"
	}
	h.SetMessageID(uuid.NewString() + "@" + hostname)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.HTML); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
