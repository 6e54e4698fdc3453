// internal/models/dispatch.go
// 發送作業資料模型 - 單筆結果、即時狀態

package models

import (
	"fmt"
	"time"
)

// OutcomeStatus 單筆發送結果
type OutcomeStatus string

const (
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome 單一收件人的發送結果
// 同一次發送中不會重試
type Outcome struct {
	RunID        string        `json:"run_id"`
	Index        int           `json:"index"`
	Window       int           `json:"window"`
	Email        string        `json:"email"`
	Status       OutcomeStatus `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	Subject      string        `json:"subject"`
	FromName     string        `json:"from_name,omitempty"`
	FromAddress  string        `json:"from"`
	SubjectSlot  int           `json:"subject_slot"`
	IdentitySlot int           `json:"identity_slot"`
	HostSlot     int           `json:"host_slot"`
	Host         string        `json:"host"`
	At           time.Time     `json:"at"`
}

// Delivered 是否寄送成功
func (o Outcome) Delivered() bool {
	return o.Status == OutcomeDelivered
}

// StatusSummary 即時狀態摘要
type StatusSummary struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Remaining int       `json:"remaining"`
	Windows   int       `json:"windows"`
	Done      bool      `json:"done"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Title 回傳單行狀態文字 (終端機標題使用)
func (s StatusSummary) Title() string {
	return fmt.Sprintf("Sent: %d | Remaining: %d | Failed: %d", s.Sent, s.Remaining, s.Failed)
}

// DispatchJob 單次發送的固定參數
type DispatchJob struct {
	Concurrency     int           `json:"concurrency"`
	Delay           time.Duration `json:"delay"`
	Port            int           `json:"port"`
	Transport       string        `json:"transport"`
	RotationEnabled bool          `json:"rotation_enabled"`
	MilestoneEvery  int           `json:"milestone_every"`
	TemplateEngine  string        `json:"template_engine"`
}
