package ws

import (
	"sync"
	"testing"

	"otserver/internal/ot"
)

func newIdleConn() *Conn {
	return &Conn{send: make(chan OutboundMessage, 32)}
}

// 广播与 Join/Leave 并发执行，房间 map 不能在遍历时被改写
func TestHub_BroadcastConcurrentJoinLeave(t *testing.T) {
	h := NewHub()
	op := ot.Operation{Type: ot.KindInsert, Position: 0, Content: "x"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newIdleConn()
			for j := 0; j < 200; j++ {
				h.Join("doc-1", c)
				h.Leave("doc-1", c)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			h.BroadcastAppliedOp("doc-1", nil, 1, uint64(j+1), uint64(j+1), op)
		}
	}()
	wg.Wait()
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	h := NewHub()
	sender := newIdleConn()
	other := newIdleConn()
	h.Join("doc-2", sender)
	h.Join("doc-2", other)

	op := ot.Operation{Type: ot.KindInsert, Position: 0, Content: "y"}
	h.BroadcastAppliedOp("doc-2", sender, 1, 1, 1, op)

	select {
	case <-other.send:
	default:
		t.Fatalf("other connection received no broadcast")
	}
	select {
	case msg := <-sender.send:
		t.Fatalf("sender received its own broadcast: %+v", msg)
	default:
	}
}

// 连接退出后广播方仍可能持有旧快照里的指针，入队必须静默丢弃
func TestConn_EnqueueAfterCloseIsNoop(t *testing.T) {
	h := NewHub()
	c := newIdleConn()
	h.Join("doc-3", c)
	h.Leave("doc-3", c)
	c.closeSend()

	c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "late"})

	if _, ok := <-c.send; ok {
		t.Fatalf("message enqueued on closed connection")
	}
}
