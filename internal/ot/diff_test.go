package ot

import (
	"reflect"
	"testing"
)

func TestDiff_CanonicalInsert(t *testing.T) {
	got := Diff("Hello world", "Hello beautiful world")
	want := []Operation{{Type: KindInsert, Position: 5, Content: " beautiful"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff() = %+v, want %+v", got, want)
	}
}

func TestDiff_CanonicalDelete(t *testing.T) {
	got := Diff("Hello beautiful world", "Hello world")
	want := []Operation{{Type: KindDelete, Position: 5, Length: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff() = %+v, want %+v", got, want)
	}
}

func TestDiff_EdgeCases(t *testing.T) {
	cases := []struct {
		name           string
		oldDoc, newDoc string
	}{
		{"both empty", "", ""},
		{"from empty", "", "hello"},
		{"to empty", "hello", ""},
		{"identical", "same text", "same text"},
		{"replace middle", "abcdef", "abXdef"},
		{"resync over deletion", "aXXbcQ", "abcR"},
		{"resync over insertion", "abcQ", "aYYbcR"},
		{"overlapping affix", "the cat sat", "the sat"},
		{"unicode rune positions", "日本語テスト", "日本語のテスト"},
		{"full rewrite", "alpha", "omega"},
		{"repeated characters", "aaaa", "aa"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ops := Diff(tc.oldDoc, tc.newDoc)
			got, err := ApplyAll(tc.oldDoc, ops)
			if err != nil {
				t.Fatalf("ApplyAll() error = %v", err)
			}
			if got != tc.newDoc {
				t.Fatalf("ApplyAll(%q, Diff) = %q, want %q", tc.oldDoc, got, tc.newDoc)
			}
		})
	}
}

func TestDiff_IdenticalProducesNothing(t *testing.T) {
	if ops := Diff("unchanged", "unchanged"); len(ops) != 0 {
		t.Fatalf("Diff() = %+v, want no operations", ops)
	}
}

// 窗口再小也只牺牲紧凑度，不牺牲正确性
func TestDiffWindow_SmallWindowStillCorrect(t *testing.T) {
	oldDoc := "The quick brown fox jumps over the lazy dog"
	newDoc := "The slow brown fox leaps over a lazy dog"
	for _, window := range []int{1, 2, 4, 64} {
		ops := DiffWindow(oldDoc, newDoc, window)
		got, err := ApplyAll(oldDoc, ops)
		if err != nil {
			t.Fatalf("window %d: ApplyAll() error = %v", window, err)
		}
		if got != newDoc {
			t.Fatalf("window %d: ApplyAll() = %q, want %q", window, got, newDoc)
		}
	}
}

func TestDiff_OutputIsNormalized(t *testing.T) {
	ops := Diff("aXXbcQ", "abcR")
	normalized := Normalize(ops)
	if !reflect.DeepEqual(ops, normalized) {
		t.Fatalf("Diff output not normalized: %+v vs %+v", ops, normalized)
	}
	for _, op := range ops {
		if op.IsNoop() {
			t.Fatalf("Diff produced noop %+v", op)
		}
	}
}
