// internal/services/keydb_service.go
// KeyDB 狀態快取服務 - 保存發送作業的即時狀態摘要

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mail-dispatch/internal/models"
)

// ErrStatusNotFound 查無發送狀態
var ErrStatusNotFound = errors.New("status not found")

// StatusStore 發送狀態存取介面
type StatusStore interface {
	SetStatus(ctx context.Context, summary models.StatusSummary) error
	GetStatus(ctx context.Context, runID string) (*models.StatusSummary, error)
}

// KeyDBService KeyDB 服務
type KeyDBService struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKeyDBService 建立 KeyDB 服務
func NewKeyDBService(addr, password string, ttl time.Duration) (*KeyDBService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	// 測試連接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to KeyDB: %w", err)
	}

	return &KeyDBService{client: client, ttl: ttl}, nil
}

func statusKey(runID string) string {
	return fmt.Sprintf("dispatch:status:%s", runID)
}

// SetStatus 寫入發送狀態摘要
func (s *KeyDBService) SetStatus(ctx context.Context, summary models.StatusSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	return s.client.Set(ctx, statusKey(summary.RunID), data, s.ttl).Err()
}

// GetStatus 取得發送狀態摘要
func (s *KeyDBService) GetStatus(ctx context.Context, runID string) (*models.StatusSummary, error) {
	data, err := s.client.Get(ctx, statusKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status models.StatusSummary
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

// Ping 檢查連接
func (s *KeyDBService) Ping(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close 關閉連接
func (s *KeyDBService) Close() error {
	return s.client.Close()
}
