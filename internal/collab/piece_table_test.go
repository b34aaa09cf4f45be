package collab

import (
	"errors"
	"testing"

	"otserver/internal/ot"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	if got := pt.String(); got != "Hello world" {
		t.Fatalf("String() = %q, want %q", got, "Hello world")
	}
	if gotLen := pt.Len(); gotLen != len([]rune("Hello world")) {
		t.Fatalf("Len() = %d, want %d", gotLen, len([]rune("Hello world")))
	}
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	if err := pt.Apply(ot.Operation{Type: ot.KindInsert, Position: 5, Content: " collaborative"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello collaborative world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	// 保留 "Hello"，删掉 " collaborative"
	if err := pt.Apply(ot.Operation{Type: ot.KindDelete, Position: 5, Length: 14}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "Hello world"
	if got := pt.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

// 删除跨过 insert 产生的多个 piece
func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("abcdef")
	if err := pt.Insert(3, "XYZ"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := pt.String(); got != "abcXYZdef" {
		t.Fatalf("String() = %q, want %q", got, "abcXYZdef")
	}

	// [2,7) 覆盖 原始左段尾部 + 整个新增段 + 原始右段头部
	if err := pt.Delete(2, 5); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := pt.String(); got != "abef" {
		t.Fatalf("String() = %q, want %q", got, "abef")
	}
	if pt.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", pt.Len())
	}
}

func TestPieceTable_RetainIsNoop(t *testing.T) {
	pt := NewPieceTable("abc")
	if err := pt.Apply(ot.Operation{Type: ot.KindRetain, Position: 1, Length: 2}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pt.String(); got != "abc" {
		t.Fatalf("String() = %q, want %q", got, "abc")
	}
}

func TestPieceTable_Bounds(t *testing.T) {
	pt := NewPieceTable("abc")

	if err := pt.Insert(4, "x"); !errors.Is(err, ot.ErrPositionOutOfBounds) {
		t.Fatalf("Insert() error = %v, want ErrPositionOutOfBounds", err)
	}
	if err := pt.Delete(3, 1); !errors.Is(err, ot.ErrPositionOutOfBounds) {
		t.Fatalf("Delete() error = %v, want ErrPositionOutOfBounds", err)
	}
	if err := pt.Delete(1, 5); !errors.Is(err, ot.ErrPositionOutOfBounds) {
		t.Fatalf("Delete() error = %v, want ErrPositionOutOfBounds", err)
	}
	// 失败调用不得污染内容
	if got := pt.String(); got != "abc" {
		t.Fatalf("String() = %q, want %q", got, "abc")
	}
}

func TestPieceTable_UnicodePositions(t *testing.T) {
	pt := NewPieceTable("日本語テスト")
	if err := pt.Insert(3, "の"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := pt.String(); got != "日本語のテスト" {
		t.Fatalf("String() = %q, want %q", got, "日本語のテスト")
	}
	if err := pt.Delete(3, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := pt.String(); got != "日本語テスト" {
		t.Fatalf("String() = %q, want %q", got, "日本語テスト")
	}
}

func TestPieceTable_EmptyInitial(t *testing.T) {
	pt := NewPieceTable("")
	if pt.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", pt.Len())
	}
	if err := pt.Insert(0, "seed"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := pt.String(); got != "seed" {
		t.Fatalf("String() = %q, want %q", got, "seed")
	}
}
