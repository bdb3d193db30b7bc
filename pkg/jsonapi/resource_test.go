package jsonapi

import "testing"

func TestObject_Attributes(t *testing.T) {
	r := NewObject("album", "1").
		Attributes(map[string]any{"id": 1, "type": "lp", "title": "Blue"}).
		Attributes(map[string]any{"year": 1971}).
		Resource()
	if r.Type != "album" || r.ID != "1" {
		t.Errorf("identity = %s/%s", r.Type, r.ID)
	}
	if len(r.Attributes) != 2 || r.Attributes["title"] != "Blue" || r.Attributes["year"] != 1971 {
		t.Errorf("Attributes = %v", r.Attributes)
	}
}

func TestObject_Relationships(t *testing.T) {
	r := NewObject("album", "1").
		ToOne("artist", "artist", "7").
		ToOne("label", "label", "").
		ToMany("tracks", "track", []string{"11", "12"}).
		ToMany("reviews", "review", nil).
		Resource()

	tests := []struct {
		name string
		want string
	}{
		{"artist", `{"data":{"type":"artist","id":"7"}}`},
		{"label", `{"data":null}`},
		{"tracks", `{"data":[{"type":"track","id":"11"},{"type":"track","id":"12"}]}`},
		{"reviews", `{"data":[]}`},
	}
	for _, tt := range tests {
		if got := marshal(t, r.Relationships[tt.name]); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}
}
