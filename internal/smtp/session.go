// internal/smtp/session.go
// SMTP Session 處理 - 接收郵件並解析 MIME 格式

package smtp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	gosmtp "github.com/emersion/go-smtp"
)

// Message 被接收的郵件
type Message struct {
	From       string    // MAIL FROM
	To         []string  // RCPT TO
	HeaderFrom string    // From 標頭
	Subject    string
	MessageID  string
	HTML       string
	Text       string
	Size       int
	TLS        bool // 接收時連線是否已加密
	ReceivedAt time.Time
}

// Session 實作 smtp.Session 介面
// 處理單一 SMTP 連線的郵件接收
type Session struct {
	server *Server
	conn   *gosmtp.Conn

	from string   // 寄件者地址
	to   []string // 收件者地址列表
}

// NewSession 建立新的 Session
func NewSession(server *Server, conn *gosmtp.Conn) *Session {
	return &Session{server: server, conn: conn, to: make([]string, 0)}
}

// Mail 處理 MAIL FROM 指令
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = cleanEmail(from)
	return nil
}

// Rcpt 處理 RCPT TO 指令
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	to = cleanEmail(to)
	if reject := s.server.opts.Reject; reject != nil {
		if err := reject(to); err != nil {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      err.Error(),
			}
		}
	}
	s.to = append(s.to, to)
	return nil
}

// Data 處理 DATA 指令，接收郵件內容
func (s *Session) Data(r io.Reader) error {
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(r)
	if err != nil {
		return fmt.Errorf("failed to read mail data: %w", err)
	}

	msg := s.parseMailData(buf.Bytes())
	msg.Size = int(size)
	if s.conn != nil {
		_, msg.TLS = s.conn.TLSConnectionState()
	}
	s.server.record(msg)
	return nil
}

// parseMailData 解析 MIME 郵件，無法解析時保留原始內容
func (s *Session) parseMailData(data []byte) Message {
	msg := Message{
		From:       s.from,
		To:         append([]string(nil), s.to...),
		ReceivedAt: time.Now(),
	}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		msg.Subject = "(No Subject)"
		msg.Text = string(data)
		return msg
	}
	defer mr.Close()

	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.HeaderFrom = addrs[0].String()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.server.log.Warn().Err(err).Msg("failed to parse message part")
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		content, _ := io.ReadAll(part.Body)
		switch {
		case strings.HasPrefix(contentType, "text/html"):
			msg.HTML = string(content)
		case strings.HasPrefix(contentType, "text/plain"):
			msg.Text = string(content)
		}
	}

	return msg
}

// Reset 重置 Session 狀態
func (s *Session) Reset() {
	s.from = ""
	s.to = make([]string, 0)
}

// Logout 處理 QUIT 指令
func (s *Session) Logout() error {
	return nil
}

// cleanEmail 清理郵件地址（移除角括號）
func cleanEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.TrimPrefix(email, "<")
	email = strings.TrimSuffix(email, ">")
	return email
}
