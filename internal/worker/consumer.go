// internal/worker/consumer.go
// RabbitMQ Outcome Consumer - 讀取發送結果事件並統計

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"mail-dispatch/internal/models"
)

// Handler 處理單筆發送結果，回傳錯誤時訊息會重新排隊
type Handler func(ctx context.Context, outcome models.Outcome) error

// consumerChannel Consumer 使用到的 channel 方法
type consumerChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// consumerConn Consumer 使用到的連線方法
type consumerConn interface {
	Channel() (consumerChannel, error)
	Close() error
}

// amqpConn 將 *amqp.Connection 轉為 consumerConn
type amqpConn struct {
	*amqp.Connection
}

func (a amqpConn) Channel() (consumerChannel, error) {
	ch, err := a.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (consumerConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// Consumer RabbitMQ Consumer
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handler  Handler
	log      zerolog.Logger

	dial    func(url string) (consumerConn, error)
	conn    consumerConn
	channel consumerChannel
	tag     string

	isShutdown bool
	activeJobs int
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// NewConsumer 建立 Consumer
func NewConsumer(url, queue string, prefetch int, handler Handler, log zerolog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	return &Consumer{
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		dial:     dialAMQP,
		log:      log.With().Str("component", "outcome-consumer").Logger(),
		tag:      "dispatch-outcomes-" + uuid.NewString()[:8],
	}
}

// Start 連接 RabbitMQ 並開始消費
func (c *Consumer) Start(ctx context.Context) error {
	var err error

	c.conn, err = c.dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	msgs, err := c.setup()
	if err != nil {
		c.conn.Close()
		c.conn, c.channel = nil, nil
		return err
	}

	c.log.Info().Str("queue", c.queue).Msg("consuming outcomes")

	c.wg.Add(1)
	go c.processMessages(ctx, msgs)
	return nil
}

// setup 開啟 channel、宣告隊列並開始消費
func (c *Consumer) setup() (<-chan amqp.Delivery, error) {
	var err error

	c.channel, err = c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// 宣告隊列 (與 publisher 相同設定)
	if _, err = c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare outcome queue: %w", err)
	}

	if err = c.channel.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := c.channel.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return msgs, nil
}

// processMessages 處理訊息
func (c *Consumer) processMessages(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for msg := range msgs {
		c.mu.Lock()
		shutdown := c.isShutdown
		c.mu.Unlock()
		if shutdown {
			msg.Nack(false, true) // 重新排隊
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

// handleMessage 處理單一訊息
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	c.mu.Lock()
	c.activeJobs++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.activeJobs--
		c.mu.Unlock()
	}()

	var outcome models.Outcome
	if err := json.Unmarshal(msg.Body, &outcome); err != nil {
		c.log.Warn().Err(err).Str("message_id", msg.MessageId).Msg("failed to parse outcome")
		msg.Nack(false, false)
		return
	}

	if err := c.handler(ctx, outcome); err != nil {
		c.log.Warn().Err(err).Str("run_id", outcome.RunID).Int("index", outcome.Index).Msg("failed to handle outcome")
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

// GracefulShutdown 停止接收新訊息並等待進行中的訊息完成
func (c *Consumer) GracefulShutdown() {
	c.log.Info().Msg("initiating graceful shutdown")
	c.mu.Lock()
	c.isShutdown = true
	c.mu.Unlock()

	if c.channel != nil {
		_ = c.channel.Cancel(c.tag, false)
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-timeout:
			c.log.Warn().Msg("shutdown timeout, forcing close")
			break wait
		case <-ticker.C:
			c.mu.Lock()
			active := c.activeJobs
			c.mu.Unlock()
			if active == 0 {
				break wait
			}
		}
	}

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()

	c.log.Info().Msg("consumer shutdown complete")
}

// RunTally 單次發送的結果統計
type RunTally struct {
	RunID     string   `json:"run_id"`
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures,omitempty"`
}

// Tally 依 run_id 累計發送結果，可作為 Handler 使用
type Tally struct {
	mu   sync.Mutex
	runs map[string]*RunTally
	seen map[string]bool
}

// NewTally 建立 Tally
func NewTally() *Tally {
	return &Tally{runs: make(map[string]*RunTally), seen: make(map[string]bool)}
}

// Handle 計入一筆結果，重複投遞的同一筆結果只計算一次
func (t *Tally) Handle(_ context.Context, o models.Outcome) error {
	key := fmt.Sprintf("%s/%d", o.RunID, o.Index)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen[key] {
		return nil
	}
	t.seen[key] = true

	run, ok := t.runs[o.RunID]
	if !ok {
		run = &RunTally{RunID: o.RunID}
		t.runs[o.RunID] = run
	}
	if o.Delivered() {
		run.Delivered++
	} else {
		run.Failed++
		run.Failures = append(run.Failures, o.Email)
	}
	return nil
}

// Runs 回傳依 run_id 排序的統計
func (t *Tally) Runs() []RunTally {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]RunTally, 0, len(t.runs))
	for _, r := range t.runs {
		cp := *r
		cp.Failures = append([]string(nil), r.Failures...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}
