// internal/dispatch/rotation.go
// 輪替游標 - 主旨、寄件者身分、Relay 主機各自獨立輪替

package dispatch

// Cursor 單一資源池的輪替位置
// index 永遠位於 [0, length)
type Cursor struct {
	index  int
	length int
}

// NewCursor 建立輪替游標，length 小於 1 時視為 1
func NewCursor(length int) Cursor {
	if length < 1 {
		length = 1
	}
	return Cursor{length: length}
}

// Index 目前位置
func (c Cursor) Index() int { return c.index }

// Len 資源池大小
func (c Cursor) Len() int { return c.length }

// Slot 回傳批次內第 offset 個收件人使用的位置
func (c Cursor) Slot(offset int) int {
	return mod(c.index+offset, c.length)
}

// Advance 前進 n 個位置
func (c *Cursor) Advance(n int) {
	c.index = mod(c.index+n, c.length)
}

// Rotation 三個資源池的游標，每個批次結束後同步前進
type Rotation struct {
	Subject  Cursor
	Identity Cursor
	Host     Cursor
}

// NewRotation 建立輪替狀態
func NewRotation(subjects, identities, hosts int) Rotation {
	return Rotation{
		Subject:  NewCursor(subjects),
		Identity: NewCursor(identities),
		Host:     NewCursor(hosts),
	}
}

// Advance 三個游標各自前進 n 個位置
func (r *Rotation) Advance(n int) {
	r.Subject.Advance(n)
	r.Identity.Advance(n)
	r.Host.Advance(n)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
