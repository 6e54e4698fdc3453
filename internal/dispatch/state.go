// internal/dispatch/state.go
// 單次發送的執行狀態 - 計數與輪替游標，只由 Dispatcher 修改

package dispatch

import "mail-dispatch/internal/models"

// Totals 發送結果統計
type Totals struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Processed int `json:"processed"`
}

// RunState 單次發送的可變狀態
// Sent + Failed 永遠等於 Processed
type RunState struct {
	Sent      int
	Failed    int
	Processed int
	Windows   int
	Rotation  Rotation
}

// NewRunState 建立初始狀態
func NewRunState(subjects, identities, hosts int) *RunState {
	return &RunState{Rotation: NewRotation(subjects, identities, hosts)}
}

// Record 計入一筆發送結果
func (s *RunState) Record(o models.Outcome) {
	if o.Delivered() {
		s.Sent++
	} else {
		s.Failed++
	}
	s.Processed++
}

// Totals 回傳目前統計
func (s *RunState) Totals() Totals {
	return Totals{Sent: s.Sent, Failed: s.Failed, Processed: s.Processed}
}
