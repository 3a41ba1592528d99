package credentials

import (
	"sync/atomic"
	"time"
)

// Credential はある時点で有効な認証情報のスナップショット。
type Credential struct {
	Token          string
	TokenExpiresAt time.Time
	Fingerprint    Fingerprint
}

// Cell は最新の認証情報を1つだけ保持する。
// 更新処理が書き込み、外部APIクライアントが読み出す。読み出し側はロックを取らない。
type Cell struct {
	current atomic.Pointer[Credential]
	now     func() time.Time
}

// NewCell は空のCellを生成する。
func NewCell() *Cell {
	return &Cell{now: time.Now}
}

// Store は認証情報を置き換える。
func (c *Cell) Store(cred Credential) {
	c.current.Store(&cred)
}

// Clear は保持している認証情報を破棄する。
func (c *Cell) Clear() {
	c.current.Store(nil)
}

// Current はトークンとフィンガープリントがどちらも有効な場合に限り認証情報を返す。
func (c *Cell) Current() (Credential, bool) {
	cred := c.current.Load()
	if cred == nil {
		return Credential{}, false
	}
	now := c.now()
	if cred.Token == "" || !now.Before(cred.TokenExpiresAt) || !cred.Fingerprint.ValidAt(now) {
		return Credential{}, false
	}
	return *cred, true
}

// peek は有効期限に関係なく保持中の認証情報を返す。
func (c *Cell) peek() *Credential {
	return c.current.Load()
}
