// internal/services/sendgrid_service.go
// SendGrid 郵件發送服務

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mail-dispatch/internal/models"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridService SendGrid 郵件發送服務
// 實作 MailSender interface
type SendGridService struct {
	apiKey string
	host   string
}

// NewSendGridService 建立 SendGrid 服務
// host 為空時使用官方 API 位址
func NewSendGridService(apiKey, host string) (*SendGridService, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if host == "" {
		host = sendGridHost
	}
	return &SendGridService{apiKey: apiKey, host: host}, nil
}

// NewSendGridFactory 回傳 SendGrid 的 TransportFactory，主機名稱僅作為輪替標籤
func NewSendGridFactory(apiKey string) TransportFactory {
	return func(string) (MailSender, error) {
		return NewSendGridService(apiKey, "")
	}
}

// Name 回傳服務名稱
func (s *SendGridService) Name() string {
	return "SendGrid"
}

// SendMail 發送郵件 (使用 SendGrid API)
func (s *SendGridService) SendMail(ctx context.Context, msg *models.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	request := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(buildSendGridMail(msg))

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	// 檢查回應狀態 (2xx 表示成功)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("SendGrid API error (status %d): %s", response.StatusCode, response.Body)
	}

	return nil
}

// buildSendGridMail 建立 SendGrid v3 郵件
func buildSendGridMail(msg *models.OutgoingMessage) *mail.SGMailV3 {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(msg.FromName, msg.FromAddress))
	message.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", msg.To))
	message.AddPersonalizations(personalization)

	message.AddContent(mail.NewContent("text/html", msg.HTML))

	if len(msg.Headers) > 0 {
		message.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			message.SetHeader(k, v)
		}
	}

	return message
}
