package ws

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"otserver/internal/collab"
)

var errInvalidMessage = errors.New("INVALID_MESSAGE")

// DocumentDirectory 文档元数据入口（标题→docID、建档）
type DocumentDirectory interface {
	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, id string, ownerID uint64, title string) error
}

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// 本连接见过的最大 clientSequence，回退视为重复/乱序提交
	lastClientSeq uint64
	send          chan OutboundMessage
	// sendMu 保护 sendClosed：广播方可能在快照里持有已退出的连接
	sendMu     sync.Mutex
	sendClosed bool
	svc        collab.Service
	dir        DocumentDirectory
	sem        *collab.SemaphoreControl
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string       { return m.Type }
func (m OpAppliedMessage) MessageType() string    { return m.Type }
func (m BatchAppliedMessage) MessageType() string { return m.Type }
func (m OpBroadcastMessage) MessageType() string  { return m.Type }

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string,
	svc collab.Service, dir DocumentDirectory, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		svc:      svc,
		dir:      dir,
		sem:      sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// 队列满了则丢弃，慢消费者不拖垮广播
	}
}

// closeSend 关闭出站通道，之后的入队都静默丢弃
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

func (c *Conn) sendError(err error) {
	c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: err.Error()})
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	if msg.Op == nil {
		c.sendError(errInvalidMessage)
		return
	}
	if msg.ClientSeq < c.lastClientSeq {
		c.sendError(collab.ErrDuplicateOrOutOfOrder)
		return
	}
	c.lastClientSeq = msg.ClientSeq

	submitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.sendError(err)
		return
	}
	defer c.sem.Release()

	res, err := c.svc.ApplyOperation(submitCtx, msg.DocID, c.userID, *msg.Op, msg.ClientSeq, msg.ExpectedVersion)
	if err != nil {
		c.sendError(err)
		return
	}
	c.SendMessage_Enqueue(OpAppliedMessage{
		Type:           "op_applied",
		DocID:          msg.DocID,
		ServerSequence: res.ServerSequence,
		TransformedOp:  res.TransformedOp,
		NewVersion:     res.NewVersion,
		Conflicts:      res.Conflicts,
	})
	c.hub.BroadcastAppliedOp(msg.DocID, c, c.userID, res.ServerSequence, res.NewVersion, res.TransformedOp)
}

func (c *Conn) handleOpBatch(ctx context.Context, msg ClientMessage) {
	if len(msg.Items) == 0 {
		c.sendError(errInvalidMessage)
		return
	}
	submitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.sendError(err)
		return
	}
	defer c.sem.Release()

	res, err := c.svc.ApplyBatch(submitCtx, msg.DocID, c.userID, msg.Items, msg.ExpectedVersion)
	if err != nil {
		c.sendError(err)
		return
	}
	c.SendMessage_Enqueue(BatchAppliedMessage{Type: "batch_applied", DocID: msg.DocID, Result: res})
	for _, item := range res.Results {
		if item.Success {
			c.hub.BroadcastAppliedOp(msg.DocID, c, c.userID, item.ServerSequence, res.NewVersion, item.TransformedOp)
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		if c.docID != "" {
			c.hub.Leave(c.docID, c)
		}
		c.closeSend()
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			return
		}
		switch msg.Type {
		case "heartbeat":
			c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})

		case "createDocument":
			docID := uuid.NewString()
			if err := c.dir.CreateDocument(ctx, docID, c.userID, msg.DocTitle); err != nil {
				log.Printf("create document error: %v", err)
				c.SendMessage_Enqueue(ServerMessage{Type: "error", Code: "CREATE_DOC_FAILED"})
				continue
			}
			c.SendMessage_Enqueue(ServerMessage{
				Type:    "createDocument",
				DocID:   docID,
				Content: "Document " + docID + " created by user " + strconv.FormatUint(c.userID, 10),
			})

		case "joinDocument":
			docID := msg.DocID
			if docID == "" && msg.DocTitle != "" {
				id, err := c.dir.GetDocumentID(ctx, msg.DocTitle)
				if err != nil {
					if errors.Is(err, collab.ErrDocumentNotFound) {
						c.SendMessage_Enqueue(ServerMessage{Type: "error", Code: collab.ErrDocumentNotFound.Error()})
					} else {
						log.Printf("get document id error: %v", err)
						c.SendMessage_Enqueue(ServerMessage{Type: "error", Code: "GET_DOCID_FAILED"})
					}
					continue
				}
				docID = id
			}
			if docID == "" {
				c.sendError(errInvalidMessage)
				continue
			}
			if c.docID != "" && c.docID != docID {
				// 先离开旧房间
				c.hub.Leave(c.docID, c)
			}
			c.docID = docID
			c.hub.Join(c.docID, c)
			c.SendMessage_Enqueue(ServerMessage{
				Type:    "joinDocument",
				DocID:   c.docID,
				Content: "Document " + c.docID + " joined by user " + strconv.FormatUint(c.userID, 10),
			})

		case "op_submit":
			c.handleOpSubmit(ctx, msg)

		case "op_batch":
			c.handleOpBatch(ctx, msg)

		case "loadDocumentContent":
			doc, err := c.svc.GetDocument(ctx, msg.DocID)
			if err != nil {
				log.Printf("load document content error: %v", err)
				c.sendError(err)
				continue
			}
			c.SendMessage_Enqueue(ServerMessage{
				Type:    "loadDocumentContent",
				DocID:   msg.DocID,
				Content: doc.Content,
				Version: doc.Version,
			})

		default:
			// 忽略未知类型，回一条提示
			c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
