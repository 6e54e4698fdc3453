// internal/smtp/backend.go
// SMTP Backend 介面實作 - 為每個連線建立 Session

package smtp

import (
	gosmtp "github.com/emersion/go-smtp"
)

// Backend 實作 smtp.Backend 介面
type Backend struct {
	server *Server
}

// NewBackend 建立 SMTP Backend
func NewBackend(server *Server) *Backend {
	return &Backend{server: server}
}

// NewSession 建立新的 SMTP Session
// 實作 smtp.Backend 介面
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	b.server.log.Debug().Str("hostname", c.Hostname()).Msg("new connection")
	return NewSession(b.server, c), nil
}
