package collab

import (
	"fmt"
	"strings"

	"otserver/internal/ot"
)

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	buf    bufferKind
	offset int
	length int
}

// PieceTable 是日志回放/批量应用用的文档缓冲：
// 原始内容只读，新增文本进 add buffer，编辑只动 piece 列表。
// 所有位置按 rune 计，与 ot.Operation 的单位一致。
type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	return &PieceTable{
		original: r,
		pieces:   []piece{{buf: bufOriginal, offset: 0, length: len(r)}},
	}
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		switch p.buf {
		case bufOriginal:
			sb.WriteString(string(pt.original[p.offset : p.offset+p.length]))
		case bufAdd:
			sb.WriteString(string(pt.add[p.offset : p.offset+p.length]))
		}
	}
	return sb.String()
}

// Apply 应用单个操作。越界报 ot.ErrPositionOutOfBounds，buffer 不做部分修改。
func (pt *PieceTable) Apply(op ot.Operation) error {
	switch op.Type {
	case ot.KindInsert:
		return pt.Insert(op.Position, op.Content)
	case ot.KindDelete:
		return pt.Delete(op.Position, op.Length)
	case ot.KindRetain:
		return nil
	}
	return fmt.Errorf("%w: unknown type %q", ot.ErrInvalidOperation, op.Type)
}

func (pt *PieceTable) Insert(pos int, text string) error {
	if pos < 0 || pos > pt.Len() {
		return fmt.Errorf("%w: insert at %d, buffer length %d", ot.ErrPositionOutOfBounds, pos, pt.Len())
	}
	r := []rune(text)
	start := len(pt.add)
	pt.add = append(pt.add, r...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(r)}

	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) {
		pt.pieces = append(pt.pieces, newPiece)
		return nil
	}

	// 在命中的 piece 内部拆成 左 / 新 / 右 三段，空段不保留。
	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

	newPieces := make([]piece, 0, len(pt.pieces)+2)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	if left.length > 0 {
		newPieces = append(newPieces, left)
	}
	newPieces = append(newPieces, newPiece)
	if right.length > 0 {
		newPieces = append(newPieces, right)
	}
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
	return nil
}

func (pt *PieceTable) Delete(pos, length int) error {
	if pos < 0 || pos >= pt.Len() || pos+length > pt.Len() {
		return fmt.Errorf("%w: delete [%d,%d), buffer length %d", ot.ErrPositionOutOfBounds, pos, pos+length, pt.Len())
	}
	remain := length
	idx, offset := pt.locate(pos)

	for remain > 0 && idx < len(pt.pieces) {
		cur := &pt.pieces[idx]
		can := cur.length - offset
		if can <= 0 {
			idx++
			offset = 0
			continue
		}

		take := min(remain, can)

		if offset == 0 && take == cur.length {
			// 整个 piece 都删掉；idx 不动，顶上来的就是下一个 piece。
			pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
			offset = 0
		} else {
			leftLen := offset
			rightLen := cur.length - offset - take

			newPieces := make([]piece, 0, len(pt.pieces)+1)
			newPieces = append(newPieces, pt.pieces[:idx]...)
			if leftLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
			}
			if rightLen > 0 {
				newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
			}
			newPieces = append(newPieces, pt.pieces[idx+1:]...)
			pt.pieces = newPieces

			// 左段保留时停在它后面继续删。
			if leftLen > 0 {
				idx++
			}
			offset = 0
		}

		remain -= take
	}
	return nil
}

// locate 把逻辑位置 pos 换算成 piece 下标和段内偏移。
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
