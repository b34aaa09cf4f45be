package ws

import (
	"time"

	"otserver/internal/collab"
	"otserver/internal/ot"
)

type ClientMessage struct {
	Type            string             `json:"type"`
	DocID           string             `json:"docId"`
	DocTitle        string             `json:"docTitle,omitempty"`
	Op              *ot.Operation      `json:"operation,omitempty"`
	Items           []collab.BatchItem `json:"operations,omitempty"`
	ClientSeq       uint64             `json:"clientSequence"`
	ExpectedVersion *uint64            `json:"expectedVersion,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	DocID   string `json:"docId,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
}

// 提交确认，回给提交者本人
type OpAppliedMessage struct {
	Type           string       `json:"type"` // 固定 "op_applied"
	DocID          string       `json:"docId"`
	ServerSequence uint64       `json:"serverSequence"`
	TransformedOp  ot.Operation `json:"transformedOperation"`
	NewVersion     uint64       `json:"newVersion"`
	Conflicts      []string     `json:"conflicts,omitempty"`
}

type BatchAppliedMessage struct {
	Type   string             `json:"type"` // 固定 "batch_applied"
	DocID  string             `json:"docId"`
	Result collab.BatchResult `json:"result"`
}

// 广播给同文档房间内其他连接的“已提交操作”事件
// - 与 op_applied(ack) 区分：这里把变换后的操作推送给其他协作者
// - 客户端收到后在本地应用 operation，并将本地 version 对齐
type OpBroadcastMessage struct {
	Type           string       `json:"type"` // 固定 "op_broadcast"
	DocID          string       `json:"docId"`
	ServerSequence uint64       `json:"serverSequence"`
	Version        uint64       `json:"version"`
	AuthorID       uint64       `json:"authorId"`
	Op             ot.Operation `json:"operation"`
	AppliedAt      time.Time    `json:"appliedAt,omitempty"`
}
