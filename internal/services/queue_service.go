// internal/services/queue_service.go
// RabbitMQ 隊列服務 - 發布單筆發送結果事件

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"mail-dispatch/internal/models"
)

// OutcomePublisher 發送結果事件發布介面
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome models.Outcome) error
}

// amqpChannel QueueService 使用到的 channel 方法
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// QueueService RabbitMQ 隊列服務
type QueueService struct {
	queue   string
	conn    *amqp.Connection
	channel amqpChannel
	mu      sync.Mutex
}

// NewQueueService 建立隊列服務並宣告結果隊列
func NewQueueService(url, queue string) (*QueueService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	svc, err := newQueueService(queue, channel)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	svc.conn = conn
	return svc, nil
}

func newQueueService(queue string, channel amqpChannel) (*QueueService, error) {
	s := &QueueService{queue: queue, channel: channel}
	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare outcome queue: %w", err)
	}
	return s, nil
}

// PublishOutcome 發布單筆發送結果
// amqp channel 不可同時被多個 goroutine 發布，因此以 mutex 保護
func (s *QueueService) PublishOutcome(ctx context.Context, outcome models.Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channel.PublishWithContext(
		ctx,
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    fmt.Sprintf("%s-%d", outcome.RunID, outcome.Index),
			Type:         string(outcome.Status),
			Body:         body,
		},
	)
}

// Close 關閉連接
func (s *QueueService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
