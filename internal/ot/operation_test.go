package ot

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		op   Operation
		ok   bool
	}{
		{"insert", Operation{Type: KindInsert, Position: 0, Content: "a"}, true},
		{"delete", Operation{Type: KindDelete, Position: 3, Length: 2}, true},
		{"retain", Operation{Type: KindRetain, Position: 0, Length: 1}, true},
		{"empty insert", Operation{Type: KindInsert, Position: 0, Content: ""}, false},
		{"zero delete", Operation{Type: KindDelete, Position: 0, Length: 0}, false},
		{"zero retain", Operation{Type: KindRetain, Position: 0, Length: 0}, false},
		{"negative length", Operation{Type: KindDelete, Position: 0, Length: -1}, false},
		{"negative position", Operation{Type: KindInsert, Position: -1, Content: "a"}, false},
		{"unknown type", Operation{Type: "replace", Position: 0, Length: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.op)
			if tc.ok && err != nil {
				t.Fatalf("Validate(%+v) error = %v, want nil", tc.op, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("Validate(%+v) = nil, want error", tc.op)
				}
				if !errors.Is(err, ErrInvalidOperation) {
					t.Fatalf("Validate(%+v) error = %v, want ErrInvalidOperation", tc.op, err)
				}
			}
		})
	}
}

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		op   Operation
		want string
	}{
		{"insert front", "world", Operation{Type: KindInsert, Position: 0, Content: "Hello "}, "Hello world"},
		{"insert end", "Hello", Operation{Type: KindInsert, Position: 5, Content: "!"}, "Hello!"},
		{"delete middle", "Hello world", Operation{Type: KindDelete, Position: 5, Length: 6}, "Hello"},
		{"retain untouched", "Hello", Operation{Type: KindRetain, Position: 0, Length: 5}, "Hello"},
		// 位置按 rune 计，不是字节
		{"unicode insert", "日本語", Operation{Type: KindInsert, Position: 2, Content: "の"}, "日本の語"},
		{"unicode delete", "日本の語", Operation{Type: KindDelete, Position: 2, Length: 1}, "日本語"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.doc, tc.op)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Apply() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		op   Operation
	}{
		{"insert beyond end", "abc", Operation{Type: KindInsert, Position: 4, Content: "x"}},
		{"delete at end", "abc", Operation{Type: KindDelete, Position: 3, Length: 1}},
		{"delete past end", "abc", Operation{Type: KindDelete, Position: 1, Length: 5}},
		{"delete from empty", "", Operation{Type: KindDelete, Position: 0, Length: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Apply(tc.doc, tc.op); !errors.Is(err, ErrPositionOutOfBounds) {
				t.Fatalf("Apply() error = %v, want ErrPositionOutOfBounds", err)
			}
		})
	}
}

func TestApplyAll(t *testing.T) {
	ops := []Operation{
		{Type: KindInsert, Position: 0, Content: "Hello"},
		{Type: KindInsert, Position: 5, Content: " world"},
		{Type: KindDelete, Position: 0, Length: 6},
	}
	got, err := ApplyAll("", ops)
	if err != nil {
		t.Fatalf("ApplyAll() error = %v", err)
	}
	if got != "world" {
		t.Fatalf("ApplyAll() = %q, want %q", got, "world")
	}
}

func TestInvert_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		op   Operation
	}{
		{"insert", "Hello world", Operation{Type: KindInsert, Position: 5, Content: " beautiful"}},
		{"delete", "Hello world", Operation{Type: KindDelete, Position: 0, Length: 6}},
		{"retain", "Hello world", Operation{Type: KindRetain, Position: 2, Length: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := Invert(tc.op, tc.doc)
			if err != nil {
				t.Fatalf("Invert() error = %v", err)
			}
			after, err := Apply(tc.doc, tc.op)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			restored, err := Apply(after, inv)
			if err != nil {
				t.Fatalf("Apply(inverse) error = %v", err)
			}
			if restored != tc.doc {
				t.Fatalf("apply then invert = %q, want %q", restored, tc.doc)
			}
		})
	}
}

func TestContentLen_Runes(t *testing.T) {
	op := Operation{Type: KindInsert, Position: 0, Content: "héllo"}
	if got := op.ContentLen(); got != 5 {
		t.Fatalf("ContentLen() = %d, want 5", got)
	}
}
