package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/artpar/crudkit/core/normalize"
	"github.com/artpar/crudkit/core/schema"
)

func makeResource(name string) schema.Resource {
	return schema.Resource{
		Name: name,
		Fields: map[string]schema.Field{
			"name": {Type: schema.FieldTypeString},
		},
	}
}

func musicResources() []schema.Resource {
	artist := makeResource("artist")
	artist.Associations = map[string]schema.Association{
		"albums": {Kind: schema.HasMany},
	}

	album := schema.Resource{
		Name: "album",
		Fields: map[string]schema.Field{
			"title":       {Type: schema.FieldTypeString},
			"released_on": {Type: schema.FieldTypeDate},
			"price":       {Type: schema.FieldTypeDecimal},
			"artist_id":   {Type: schema.FieldTypeRef, To: "artist"},
		},
		Associations: map[string]schema.Association{
			"artist": {Kind: schema.BelongsTo},
			"tracks": {Kind: schema.HasMany, Nested: true},
		},
	}

	track := schema.Resource{
		Name: "track",
		Fields: map[string]schema.Field{
			"title":       {Type: schema.FieldTypeString},
			"length":      {Type: schema.FieldTypeFloat},
			"recorded_at": {Type: schema.FieldTypeDateTime},
			"album_id":    {Type: schema.FieldTypeRef, To: "album"},
		},
		Associations: map[string]schema.Association{
			"album": {Kind: schema.BelongsTo, Nested: true},
		},
	}
	return []schema.Resource{artist, album, track}
}

func TestRegistry_Register(t *testing.T) {
	r := New()

	derived, err := r.Register(makeResource("user"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if derived.Table != "users" {
		t.Errorf("Table = %q", derived.Table)
	}

	got, ok := r.Get("user")
	if !ok || got.Name != "user" {
		t.Errorf("Get() = %v, %v", got.Name, ok)
	}

	if _, err := r.Register(makeResource("user")); err == nil {
		t.Error("duplicate registration should fail")
	}

	clash := makeResource("member")
	clash.Table = "users"
	if _, err := r.Register(clash); err == nil || !strings.Contains(err.Error(), "already claimed") {
		t.Errorf("table clash error = %v", err)
	}
}

func TestRegistry_ListAndUnregister(t *testing.T) {
	r := New()
	for _, name := range []string{"zebra", "apple", "mango"} {
		if _, err := r.Register(makeResource(name)); err != nil {
			t.Fatal(err)
		}
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "apple" || list[2].Name != "zebra" {
		t.Errorf("List() order wrong: %v", list)
	}

	if err := r.Unregister("apple"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := r.Get("apple"); ok {
		t.Error("apple still registered")
	}
	if err := r.Unregister("apple"); err == nil {
		t.Error("second Unregister should fail")
	}
	// The table is free again.
	if _, err := r.Register(makeResource("apple")); err != nil {
		t.Errorf("re-register: %v", err)
	}
}

func TestRegistry_Check(t *testing.T) {
	r := New()
	for _, res := range musicResources() {
		if _, err := r.Register(res); err != nil {
			t.Fatal(err)
		}
	}

	// artist has_many albums needs albums.artist_id: present.
	if err := r.Check(); err != nil {
		t.Fatalf("Check() = %v", err)
	}

	broken := makeResource("review")
	broken.Associations = map[string]schema.Association{
		"album":  {Kind: schema.BelongsTo},
		"author": {Kind: schema.BelongsTo, To: "critic"},
	}
	if _, err := r.Register(broken); err != nil {
		t.Fatal(err)
	}

	err := r.Check()
	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("Check() = %v, want ReferenceError", err)
	}
	want := []string{
		`review.album: review has no key field "album_id"`,
		`review.author: unknown resource "critic"`,
	}
	if strings.Join(refErr.Problems, "|") != strings.Join(want, "|") {
		t.Errorf("Problems = %v", refErr.Problems)
	}
}

func TestRegistry_NormalizationSchema(t *testing.T) {
	r := New()
	for _, res := range musicResources() {
		if _, err := r.Register(res); err != nil {
			t.Fatal(err)
		}
	}

	s, err := r.NormalizationSchema("album")
	if err != nil {
		t.Fatalf("NormalizationSchema: %v", err)
	}
	if s.Field("released_on") != normalize.Date || s.Field("price") != normalize.Decimal || s.Field("title") != normalize.Other {
		t.Errorf("fields = %v", s.Fields)
	}
	if _, ok := s.Association("artist"); ok {
		t.Error("artist does not accept nested attributes")
	}

	tracks, ok := s.Association("tracks_attributes")
	if !ok || tracks.Arity != normalize.Many {
		t.Fatalf("tracks = %v, %v", tracks, ok)
	}
	if tracks.Schema.Field("recorded_at") != normalize.DateTime || tracks.Schema.Field("length") != normalize.Float {
		t.Errorf("track fields = %v", tracks.Schema.Fields)
	}

	// track.album points back at album: the cycle resolves to the same schema.
	back, ok := tracks.Schema.Association("album")
	if !ok || back.Arity != normalize.One || back.Schema != s {
		t.Errorf("cyclic association not shared: %v", back)
	}

	again, _ := r.NormalizationSchema("album")
	if again != s {
		t.Error("schema not memoized")
	}

	if _, err := r.NormalizationSchema("missing"); err == nil {
		t.Error("expected error for unknown resource")
	}
}

func TestRegistry_NormalizationSchemaUnknownTarget(t *testing.T) {
	r := New()
	res := makeResource("playlist")
	res.Associations = map[string]schema.Association{"songs": {Kind: schema.HasMany, Nested: true}}
	if _, err := r.Register(res); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NormalizationSchema("playlist"); err == nil {
		t.Error("expected error for unregistered target")
	}
	// A failed build leaves nothing memoized.
	if _, err := r.Register(makeResource("song")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NormalizationSchema("playlist"); err != nil {
		t.Errorf("after registering target: %v", err)
	}
}
