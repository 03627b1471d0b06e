// session_table.go
// 核心职责：进程内会话表
// 1. userId -> 活跃连接，一用户一连接，后注册者胜出
// 2. sessionId -> 连接，供按会话精确清理
// 3. 所有操作加锁，容量极小，不做分片
package chat

import "sync"

// SessionTable 进程内会话表
type SessionTable struct {
	mu        sync.RWMutex
	byUser    map[string]*UserConn
	bySession map[string]*UserConn
}

func NewSessionTable() *SessionTable {
	return &SessionTable{
		byUser:    make(map[string]*UserConn),
		bySession: make(map[string]*UserConn),
	}
}

// Put 登记连接，同一用户已有旧连接时返回旧连接（后注册者胜出，
// 旧连接由调用方关闭）
func (t *SessionTable) Put(c *UserConn) (prev *UserConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.byUser[c.UserId]
	t.byUser[c.UserId] = c
	t.bySession[c.SessionId] = c
	if prev != nil {
		delete(t.bySession, prev.SessionId)
	}
	return prev
}

// GetByUser 按用户查找活跃连接
func (t *SessionTable) GetByUser(userId string) (*UserConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byUser[userId]
	return c, ok
}

// GetBySession 按会话查找连接
func (t *SessionTable) GetBySession(sessionId string) (*UserConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.bySession[sessionId]
	return c, ok
}

// Remove 按会话移除连接
// 仅当用户槽位仍指向该会话时才清空用户槽位，
// 防止新连接抢占后被旧连接的清理误删
func (t *SessionTable) Remove(sessionId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.bySession[sessionId]
	if !ok {
		return
	}
	delete(t.bySession, sessionId)
	if cur, ok := t.byUser[c.UserId]; ok && cur.SessionId == sessionId {
		delete(t.byUser, c.UserId)
	}
}

// Snapshot 返回当前所有连接的副本，心跳巡检用
func (t *SessionTable) Snapshot() []*UserConn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]*UserConn, 0, len(t.bySession))
	for _, c := range t.bySession {
		conns = append(conns, c)
	}
	return conns
}

// Len 当前连接数
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySession)
}
