// internal/services/transport_pool.go
// 傳輸池 - 每個 Relay 主機一個預先建立的傳輸

package services

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// TransportFactory 為單一主機建立傳輸
type TransportFactory func(host string) (MailSender, error)

// TransportPool 依輪替位置選擇傳輸
// 建立完成後為唯讀，可同時被多個 goroutine 使用
type TransportPool struct {
	hosts   []string
	senders []MailSender
}

// NewTransportPool 在發送開始前為每個不同的主機建立傳輸
// 任何一個主機建立失敗都會回傳錯誤
func NewTransportPool(hosts []string, factory TransportFactory) (*TransportPool, error) {
	if len(hosts) == 0 {
		return nil, errors.New("transport pool requires at least one host")
	}
	if factory == nil {
		return nil, errors.New("transport factory is not configured")
	}

	built := make(map[string]MailSender, len(hosts))
	pool := &TransportPool{
		hosts:   make([]string, 0, len(hosts)),
		senders: make([]MailSender, 0, len(hosts)),
	}

	for _, h := range hosts {
		host := strings.TrimSpace(h)
		if host == "" {
			pool.Close()
			return nil, errors.New("transport pool host must not be empty")
		}

		sender, ok := built[strings.ToLower(host)]
		if !ok {
			var err error
			sender, err = factory(host)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to build transport for %s: %w", host, err)
			}
			built[strings.ToLower(host)] = sender
		}

		pool.hosts = append(pool.hosts, host)
		pool.senders = append(pool.senders, sender)
	}

	return pool, nil
}

// Len 主機池大小
func (p *TransportPool) Len() int { return len(p.hosts) }

// Host 回傳第 slot 個主機名稱
func (p *TransportPool) Host(slot int) string { return p.hosts[slot] }

// ForSlot 回傳第 slot 個主機的傳輸
func (p *TransportPool) ForSlot(slot int) MailSender { return p.senders[slot] }

// Close 關閉實作 io.Closer 的傳輸
func (p *TransportPool) Close() error {
	seen := make(map[MailSender]bool, len(p.senders))
	var errs []error
	for _, s := range p.senders {
		if seen[s] {
			continue
		}
		seen[s] = true
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
