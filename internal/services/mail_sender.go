// internal/services/mail_sender.go
// 郵件發送服務共用介面

package services

import (
	"context"

	"mail-dispatch/internal/models"
)

// MailSender 郵件發送服務介面
// 所有傳輸方式（SMTP Relay、SendGrid 等）都需實作此介面，且必須可同時被多個 goroutine 使用
type MailSender interface {
	// SendMail 發送郵件
	SendMail(ctx context.Context, msg *models.OutgoingMessage) error

	// Name 回傳服務名稱，用於 logging
	Name() string
}

// Notifier 通知服務介面 (里程碑通知)
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
