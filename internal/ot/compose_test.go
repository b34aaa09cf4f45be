package ot

import (
	"reflect"
	"testing"
)

func TestCompose(t *testing.T) {
	cases := []struct {
		name string
		a, b Operation
		want Operation
		ok   bool
	}{
		{
			"adjacent inserts",
			Operation{Type: KindInsert, Position: 2, Content: "ab"},
			Operation{Type: KindInsert, Position: 4, Content: "cd"},
			Operation{Type: KindInsert, Position: 2, Content: "abcd"},
			true,
		},
		{
			"same-position deletes",
			Operation{Type: KindDelete, Position: 3, Length: 2},
			Operation{Type: KindDelete, Position: 3, Length: 1},
			Operation{Type: KindDelete, Position: 3, Length: 3},
			true,
		},
		{
			"insert cancelled by delete",
			Operation{Type: KindInsert, Position: 5, Content: "xy"},
			Operation{Type: KindDelete, Position: 5, Length: 2},
			Operation{Type: KindRetain, Position: 5, Length: 0},
			true,
		},
		{
			"non-adjacent inserts",
			Operation{Type: KindInsert, Position: 0, Content: "a"},
			Operation{Type: KindInsert, Position: 5, Content: "b"},
			Operation{},
			false,
		},
		{
			"different-position deletes",
			Operation{Type: KindDelete, Position: 0, Length: 1},
			Operation{Type: KindDelete, Position: 4, Length: 1},
			Operation{},
			false,
		},
		{
			"partial cancellation not composed",
			Operation{Type: KindInsert, Position: 0, Content: "abc"},
			Operation{Type: KindDelete, Position: 0, Length: 1},
			Operation{},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Compose(tc.a, tc.b)
			if ok != tc.ok {
				t.Fatalf("Compose() ok = %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("Compose() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   []Operation
		want []Operation
	}{
		{
			"drops noops",
			[]Operation{
				{Type: KindInsert, Position: 0, Content: ""},
				{Type: KindDelete, Position: 2, Length: 0},
				{Type: KindRetain, Position: 1, Length: 0},
				{Type: KindInsert, Position: 0, Content: "a"},
			},
			[]Operation{{Type: KindInsert, Position: 0, Content: "a"}},
		},
		{
			"positive retain survives",
			[]Operation{{Type: KindRetain, Position: 0, Length: 3}},
			[]Operation{{Type: KindRetain, Position: 0, Length: 3}},
		},
		{
			"merges adjacent inserts",
			[]Operation{
				{Type: KindInsert, Position: 0, Content: "ab"},
				{Type: KindInsert, Position: 2, Content: "cd"},
				{Type: KindInsert, Position: 4, Content: "e"},
			},
			[]Operation{{Type: KindInsert, Position: 0, Content: "abcde"}},
		},
		{
			"full cancellation leaves nothing",
			[]Operation{
				{Type: KindInsert, Position: 2, Content: "ab"},
				{Type: KindDelete, Position: 2, Length: 2},
			},
			[]Operation{},
		},
		{
			// 相消后前后两项必须能直接接上，不许留 retain 产物挡路
			"cancellation unblocks neighbours",
			[]Operation{
				{Type: KindInsert, Position: 0, Content: "a"},
				{Type: KindInsert, Position: 0, Content: "x"},
				{Type: KindDelete, Position: 0, Length: 1},
				{Type: KindInsert, Position: 1, Content: "b"},
			},
			[]Operation{{Type: KindInsert, Position: 0, Content: "ab"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := [][]Operation{
		{
			{Type: KindInsert, Position: 0, Content: "a"},
			{Type: KindInsert, Position: 0, Content: "x"},
			{Type: KindDelete, Position: 0, Length: 1},
			{Type: KindInsert, Position: 1, Content: "b"},
		},
		{
			{Type: KindInsert, Position: 0, Content: "abc"},
			{Type: KindDelete, Position: 3, Length: 2},
			{Type: KindDelete, Position: 3, Length: 1},
		},
		{},
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("Normalize not idempotent: %+v vs %+v", once, twice)
		}
	}
}
