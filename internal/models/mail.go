// internal/models/mail.go
// 郵件資料模型 - 收件人與寄出的郵件

package models

import (
	"fmt"
	"strings"
)

// Recipient 收件人資料
// Email 為必填，其餘欄位可為空字串
type Recipient struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Zip     string `json:"zip,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// DisplayName 回傳收件人名稱，未設定時使用 Email
func (r Recipient) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return r.Email
	}
	return r.Name
}

// OutgoingMessage 準備交給傳輸層的郵件
type OutgoingMessage struct {
	FromName    string            `json:"from_name,omitempty"`
	FromAddress string            `json:"from"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// From 回傳 "Name <address>" 格式的寄件者
func (m *OutgoingMessage) From() string {
	if m.FromName == "" {
		return m.FromAddress
	}
	return fmt.Sprintf("%s <%s>", m.FromName, m.FromAddress)
}
