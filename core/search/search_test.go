package search

import (
	"testing"

	"github.com/artpar/crudkit/core/convention"
	"github.com/artpar/crudkit/core/query"
	"github.com/artpar/crudkit/core/schema"
	"github.com/rs/zerolog"
)

type catalog map[string]convention.Derived

func (c catalog) Get(name string) (convention.Derived, bool) {
	d, ok := c[name]
	return d, ok
}

func musicCatalog() catalog {
	album := convention.Derive(schema.Resource{
		Name: "album",
		Fields: map[string]schema.Field{
			"title":     {Type: schema.FieldTypeString},
			"year":      {Type: schema.FieldTypeInt},
			"artist_id": {Type: schema.FieldTypeRef, To: "artist"},
		},
		Associations: map[string]schema.Association{
			"artist": {Kind: schema.BelongsTo},
		},
	})
	artist := convention.Derive(schema.Resource{
		Name:   "artist",
		Fields: map[string]schema.Field{"name": {Type: schema.FieldTypeString}},
	})
	return catalog{"album": album, "artist": artist}
}

func TestFilter(t *testing.T) {
	s := New(musicCatalog(), zerolog.Nop())

	tests := []struct {
		key  string
		in   any
		want query.Condition
	}{
		{"title_eq", "Blue", query.Condition{Field: "title", Op: query.Eq, Value: "Blue"}},
		{"title_not_eq", "Blue", query.Condition{Field: "title", Op: query.NotEq, Value: "Blue"}},
		{"title_cont", "50%", query.Condition{Field: "title", Op: query.Like, Value: `%50\%%`}},
		{"title_start", "Bl", query.Condition{Field: "title", Op: query.Like, Value: "Bl%"}},
		{"title_end", "ue", query.Condition{Field: "title", Op: query.Like, Value: "%ue"}},
		{"year_gt", 1970, query.Condition{Field: "year", Op: query.Gt, Value: 1970}},
		{"year_gteq", "1970", query.Condition{Field: "year", Op: query.Gteq, Value: "1970"}},
		{"year_lt", 1980, query.Condition{Field: "year", Op: query.Lt, Value: 1980}},
		{"year_lteq", 1980, query.Condition{Field: "year", Op: query.Lteq, Value: 1980}},
		{"year_null", "1", query.Condition{Field: "year", Op: query.Null, Value: true}},
		{"year_null", false, query.Condition{Field: "year", Op: query.Null, Value: false}},
		{"title_present", "true", query.Condition{Field: "title", Op: query.NotNull, Value: true}},
		{"title_present", "false", query.Condition{Field: "title", Op: query.NotNull, Value: false}},
		{"artist_name_cont", "joni", query.Condition{Field: "artist.name", Op: query.Like, Value: "%joni%"}},
		{"artist_id_eq", "a1", query.Condition{Field: "artist_id", Op: query.Eq, Value: "a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := s.Filter(query.New("album"), map[string]any{tt.key: tt.in}).Conditions()
			if len(got) != 1 {
				t.Fatalf("conditions = %v", got)
			}
			if got[0] != tt.want {
				t.Errorf("got %v, want %v", got[0], tt.want)
			}
		})
	}
}

func TestFilterIn(t *testing.T) {
	s := New(musicCatalog(), zerolog.Nop())
	got := s.Filter(query.New("album"), map[string]any{"year_in": []any{1969, 1971}}).Conditions()
	if len(got) != 1 || got[0].Op != query.In || len(got[0].Value.([]any)) != 2 {
		t.Errorf("conditions = %v", got)
	}
}

func TestFilterSkips(t *testing.T) {
	s := New(musicCatalog(), zerolog.Nop())
	spec := map[string]any{
		"title_cont":  "",
		"year_in":     []any{},
		"year_eq":     nil,
		"colour_eq":   "red",
		"title_fuzzy": "blue",
		"s":           "year desc",
	}
	if got := s.Filter(query.New("album"), spec).Conditions(); len(got) != 0 {
		t.Errorf("conditions = %v", got)
	}

	q := query.New("label")
	if s.Filter(q, map[string]any{"name_eq": "x"}) != q {
		t.Error("unknown resource filtered")
	}
}

func TestFilterIsSortedAndAdditive(t *testing.T) {
	s := New(musicCatalog(), zerolog.Nop())
	q := query.New("album").WhereEq("artist_id", "a1")
	got := s.Filter(q, map[string]any{"year_gt": 1970, "title_cont": "b"}).String()
	want := "album where artist_id eq a1 and title like %b% and year gt 1970"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSorts(t *testing.T) {
	s := New(musicCatalog(), zerolog.Nop())

	got := s.Sorts(map[string]any{"s": "year desc, title"})
	want := []query.Order{{Field: "year", Desc: true}, {Field: "title"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Sorts = %v", got)
	}

	if got := s.Sorts(map[string]any{"s": []any{"title asc"}}); len(got) != 1 || got[0].Field != "title" {
		t.Errorf("list sort = %v", got)
	}
	if got := s.Sorts(map[string]any{"s": "year sideways"}); got != nil {
		t.Errorf("invalid sort = %v", got)
	}
	if got := s.Sorts(map[string]any{"title_eq": "x"}); got != nil {
		t.Errorf("no sort = %v", got)
	}
}
