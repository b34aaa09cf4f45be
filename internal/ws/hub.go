package ws

import (
	"sync"
	"time"

	"otserver/internal/ot"
)

type Hub struct {
	// 读写锁保护 rooms，加入/离开房间、广播时都会先加锁
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 房间里存连接而不是 userID：
		// 一个用户可开多个标签页/设备，广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// BroadcastAppliedOp 把提交成功的变换结果推给同房间的其他连接
func (h *Hub) BroadcastAppliedOp(docID string, from *Conn, authorID uint64, serverSeq, version uint64, op ot.Operation) {
	// 持锁期间拷贝成员快照，发送在锁外进行，
	// 避免遍历时 Join/Leave 并发改写房间 map
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	msg := OpBroadcastMessage{
		Type:           "op_broadcast",
		DocID:          docID,
		ServerSequence: serverSeq,
		Version:        version,
		AuthorID:       authorID,
		Op:             op,
		AppliedAt:      time.Now(),
	}
	for _, c := range targets {
		c.SendMessage_Enqueue(msg)
	}
}
