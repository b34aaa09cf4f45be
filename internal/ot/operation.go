package ot

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindRetain Kind = "retain"
)

var (
	ErrInvalidOperation    = errors.New("INVALID_OPERATION")
	ErrPositionOutOfBounds = errors.New("POSITION_OUT_OF_BOUNDS")
)

// Operation 是一次原子编辑意图。
// Position/Length 的计量单位统一为 Unicode 码点（rune），
// 与 PieceTable 的 []rune 缓冲保持一致；客户端与服务端必须使用同一单位。
type Operation struct {
	Type     Kind   `json:"type"`              // "insert" / "delete" / "retain"
	Position int    `json:"position"`          // 在文档里的 rune 下标
	Content  string `json:"content,omitempty"` // insert 的文本
	Length   int    `json:"length,omitempty"`  // delete/retain 的长度
}

// ContentLen 返回 Content 的 rune 数。
func (op Operation) ContentLen() int {
	return len([]rune(op.Content))
}

// End 返回 delete/retain 作用区间 [Position, End) 的右端点。
func (op Operation) End() int {
	return op.Position + op.Length
}

// IsNoop 判断操作是否对内容零影响。
// 零长度 retain 只会由 transform/compose 内部产生，不是合法的客户端输入。
func (op Operation) IsNoop() bool {
	switch op.Type {
	case KindInsert:
		return op.Content == ""
	case KindDelete:
		return op.Length == 0
	case KindRetain:
		return true
	}
	return false
}

// Validate 校验客户端提交的操作，任何 transform 之前先过这里。
// 按“客户端输入”从严校验：零长度 delete/retain 一律拒绝。
func Validate(op Operation) error {
	switch op.Type {
	case KindInsert:
		if op.Content == "" {
			return fmt.Errorf("%w: insert requires non-empty content", ErrInvalidOperation)
		}
	case KindDelete, KindRetain:
		if op.Length <= 0 {
			return fmt.Errorf("%w: %s requires a positive length", ErrInvalidOperation, op.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
	}
	if op.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, op.Position)
	}
	return nil
}

// Apply 把单个操作应用到文档内容上。越界直接报错，不做任何部分修改。
func Apply(doc string, op Operation) (string, error) {
	r := []rune(doc)
	switch op.Type {
	case KindInsert:
		if op.Position < 0 || op.Position > len(r) {
			return "", fmt.Errorf("%w: insert at %d, document length %d", ErrPositionOutOfBounds, op.Position, len(r))
		}
		return string(r[:op.Position]) + op.Content + string(r[op.Position:]), nil
	case KindDelete:
		if op.Position < 0 || op.Position >= len(r) || op.End() > len(r) {
			return "", fmt.Errorf("%w: delete [%d,%d), document length %d", ErrPositionOutOfBounds, op.Position, op.End(), len(r))
		}
		return string(r[:op.Position]) + string(r[op.End():]), nil
	case KindRetain:
		return doc, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
}

// ApplyAll 依次应用一串操作。
func ApplyAll(doc string, ops []Operation) (string, error) {
	var err error
	for _, op := range ops {
		if doc, err = Apply(doc, op); err != nil {
			return "", err
		}
	}
	return doc, nil
}

// Invert 基于应用前的文档求逆操作：insert↔delete，retain 是自身的逆。
// doc 必须是 op 应用之前的内容（delete 的逆需要从中取回被删文本）。
func Invert(op Operation, doc string) (Operation, error) {
	switch op.Type {
	case KindInsert:
		return Operation{Type: KindDelete, Position: op.Position, Length: op.ContentLen()}, nil
	case KindDelete:
		r := []rune(doc)
		if op.Position < 0 || op.End() > len(r) {
			return Operation{}, fmt.Errorf("%w: invert delete [%d,%d), document length %d", ErrPositionOutOfBounds, op.Position, op.End(), len(r))
		}
		return Operation{Type: KindInsert, Position: op.Position, Content: string(r[op.Position:op.End()])}, nil
	case KindRetain:
		return op, nil
	}
	return Operation{}, fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
}
