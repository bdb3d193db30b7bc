package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuilderIsImmutable(t *testing.T) {
	base := New("albums")
	filtered := base.WhereEq("genre", "rock")
	ordered := filtered.Order(Order{Field: "year", Desc: true})
	paged := ordered.Limit(10).Offset(20)

	if len(base.Conditions()) != 0 {
		t.Errorf("base conditions = %v", base.Conditions())
	}
	if len(filtered.Orders()) != 0 {
		t.Errorf("filtered orders = %v", filtered.Orders())
	}
	if l, o := ordered.Bounds(); l != 0 || o != 0 {
		t.Errorf("ordered bounds = %d, %d", l, o)
	}
	if l, o := paged.Bounds(); l != 10 || o != 20 {
		t.Errorf("paged bounds = %d, %d", l, o)
	}
	if got := paged.Conditions(); len(got) != 1 || got[0] != (Condition{Field: "genre", Op: Eq, Value: "rock"}) {
		t.Errorf("paged conditions = %v", got)
	}
}

func TestSiblingBranchesDoNotShareState(t *testing.T) {
	base := New("albums").WhereEq("a", 1)
	left := base.WhereEq("b", 2)
	right := base.WhereEq("c", 3)

	if len(left.Conditions()) != 2 || left.Conditions()[1].Field != "b" {
		t.Errorf("left = %v", left.Conditions())
	}
	if len(right.Conditions()) != 2 || right.Conditions()[1].Field != "c" {
		t.Errorf("right = %v", right.Conditions())
	}
}

func TestReorderAndUnbounded(t *testing.T) {
	q := New("albums").Order(Order{Field: "title"}).Order(Order{Field: "year"})
	if len(q.Orders()) != 2 {
		t.Fatalf("orders = %v", q.Orders())
	}
	q = q.Reorder(Order{Field: "id", Desc: true})
	if !reflect.DeepEqual(q.Orders(), []Order{{Field: "id", Desc: true}}) {
		t.Errorf("reorder = %v", q.Orders())
	}

	u := q.Limit(5).Offset(5).WhereEq("x", 1).Unbounded()
	if l, o := u.Bounds(); l != 0 || o != 0 || len(u.Orders()) != 0 {
		t.Errorf("unbounded = %v", u)
	}
	if len(u.Conditions()) != 1 {
		t.Errorf("unbounded dropped conditions")
	}
}

func TestNegativeBounds(t *testing.T) {
	l, o := New("albums").Limit(-1).Offset(-5).Bounds()
	if l != 0 || o != 0 {
		t.Errorf("bounds = %d, %d", l, o)
	}
}

func TestString(t *testing.T) {
	q := New("albums").WhereEq("genre", "rock").Order(Order{Field: "year", Desc: true}).Limit(10)
	want := "albums where genre eq rock order year desc limit 10 offset 0"
	if q.String() != want {
		t.Errorf("String = %q, want %q", q.String(), want)
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		want []Order
	}{
		{"year desc, title", []Order{{Field: "year", Desc: true}, {Field: "title"}}},
		{"title ASC", []Order{{Field: "title"}}},
		{"artist.name desc", []Order{{Field: "artist.name", Desc: true}}},
		{"", nil},
		{" , ", nil},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if err != nil {
			t.Errorf("ParseOrder(%q): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, in := range []string{"title sideways", "1abc", "a b c", "x; drop table albums", "a.b.c"} {
		if _, err := ParseOrder(in); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("ParseOrder(%q) err = %v, want ErrInvalidOrder", in, err)
		}
	}
}

func TestOrdersFrom(t *testing.T) {
	tests := []struct {
		in   any
		want []Order
	}{
		{nil, nil},
		{"year desc", []Order{{Field: "year", Desc: true}}},
		{Order{Field: "x"}, []Order{{Field: "x"}}},
		{[]string{"a", "b desc"}, []Order{{Field: "a"}, {Field: "b", Desc: true}}},
		{[]any{"a", map[string]any{"b": "desc"}}, []Order{{Field: "a"}, {Field: "b", Desc: true}}},
		{map[string]any{"z": "asc", "a": "desc"}, []Order{{Field: "a", Desc: true}, {Field: "z"}}},
		{map[any]any{"title": nil}, []Order{{Field: "title"}}},
	}
	for _, tt := range tests {
		got, err := OrdersFrom(tt.in)
		if err != nil {
			t.Errorf("OrdersFrom(%#v): %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("OrdersFrom(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := OrdersFrom(42); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("OrdersFrom(42) err = %v", err)
	}
}
