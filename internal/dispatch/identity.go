// internal/dispatch/identity.go
// 寄件者身分策略 - 決定每個收件人使用的顯示名稱與寄件地址

package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/models"
)

// Identity 寄件者顯示名稱與地址
type Identity struct {
	Name    string
	Address string
}

// IdentityPolicy 寄件者身分策略
type IdentityPolicy interface {
	// Len 身分池大小 (輪替游標長度)
	Len() int
	// Identity 回傳第 slot 個身分，slot 位於 [0, Len())
	Identity(slot int, r models.Recipient) Identity
	// Kind 策略名稱，用於 logging
	Kind() string
}

// RotatingName 固定寄件地址，輪替顯示名稱
type RotatingName struct {
	Names   []string
	Address string
}

func (p *RotatingName) Len() int     { return len(p.Names) }
func (p *RotatingName) Kind() string { return config.SenderPolicyRotateName }

func (p *RotatingName) Identity(slot int, _ models.Recipient) Identity {
	return Identity{Name: p.Names[mod(slot, len(p.Names))], Address: p.Address}
}

// TaggedAddress 固定顯示名稱，每個收件人對應一個固定網域上的子地址
// 地址格式為 mailbox+tag@domain，tag 由收件人 email 的 HMAC 產生，同一收件人每次都得到相同地址
type TaggedAddress struct {
	Name    string
	Mailbox string
	Domain  string
	Secret  []byte
}

func (p *TaggedAddress) Len() int     { return 1 }
func (p *TaggedAddress) Kind() string { return config.SenderPolicyTaggedAddress }

func (p *TaggedAddress) Identity(_ int, r models.Recipient) Identity {
	return Identity{
		Name:    p.Name,
		Address: fmt.Sprintf("%s+%s@%s", p.Mailbox, p.Tag(r.Email), p.Domain),
	}
}

// Tag 回傳收件人的地址標籤 (16 個十六進位字元)
func (p *TaggedAddress) Tag(email string) string {
	mac := hmac.New(sha256.New, p.Secret)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// IdentityConfig 身分策略設定
type IdentityConfig struct {
	Policy  string
	Names   []string
	Email   string
	Domain  string
	Mailbox string
	Secret  string
}

// IdentityConfigFrom 由應用程式設定取出身分策略設定
func IdentityConfigFrom(cfg *config.Config) IdentityConfig {
	return IdentityConfig{
		Policy:  cfg.SenderPolicy,
		Names:   cfg.SenderNames,
		Email:   cfg.SenderEmail,
		Domain:  cfg.SenderDomain,
		Mailbox: cfg.SenderMailbox,
		Secret:  cfg.SenderTagSecret,
	}
}

// NewIdentityPolicy 依設定建立身分策略
// 未啟用輪替時，顯示名稱池只保留第一個
func NewIdentityPolicy(cfg IdentityConfig, rotation bool) (IdentityPolicy, error) {
	names := make([]string, 0, len(cfg.Names))
	for _, n := range cfg.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("at least one sender name is required")
	}

	switch cfg.Policy {
	case "", config.SenderPolicyRotateName:
		if strings.TrimSpace(cfg.Email) == "" {
			return nil, errors.New("sender email is required")
		}
		if !rotation {
			names = names[:1]
		}
		return &RotatingName{Names: names, Address: strings.TrimSpace(cfg.Email)}, nil
	case config.SenderPolicyTaggedAddress:
		domain := strings.TrimPrefix(strings.TrimSpace(cfg.Domain), "@")
		if domain == "" {
			return nil, errors.New("sender domain is required")
		}
		mailbox := strings.TrimSpace(cfg.Mailbox)
		if mailbox == "" {
			return nil, errors.New("sender mailbox is required")
		}
		return &TaggedAddress{Name: names[0], Mailbox: mailbox, Domain: domain, Secret: []byte(cfg.Secret)}, nil
	default:
		return nil, fmt.Errorf("unknown sender policy %q", cfg.Policy)
	}
}
