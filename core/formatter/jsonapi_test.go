package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/artpar/crudkit/core/authz"
	"github.com/artpar/crudkit/core/paginate"
	"github.com/artpar/crudkit/core/record"
	"github.com/artpar/crudkit/pkg/jsonapi"
)

func decodeDocument(t *testing.T, buf *bytes.Buffer) jsonapi.Document {
	t.Helper()
	var doc jsonapi.Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode %s: %v", buf.String(), err)
	}
	return doc
}

func TestJSONAPIFormatter_List(t *testing.T) {
	f := NewJSONAPIFormatter()
	res := testResource()
	res.Associations[0].ForeignKey = "artist_id"

	records := testRecords()
	records[0]["artist"] = map[string]any{"id": int64(7), "name": "Joni Mitchell"}
	records[0]["tracks"] = []map[string]any{
		{"id": int64(11), "title": "All I Want"},
		{"id": int64(12), "title": "My Old Man"},
	}
	records[1]["artist_id"] = int64(7)

	var buf bytes.Buffer
	page := &paginate.Page{Number: 1, Size: 2, Total: 3}
	if err := f.FormatList(&buf, res, records, FormatOptions{Page: page}); err != nil {
		t.Fatalf("FormatList: %v", err)
	}

	var doc struct {
		Data     []jsonapi.Resource `json:"data"`
		Included []jsonapi.Resource `json:"included"`
		Meta     map[string]any     `json:"meta"`
		JSONAPI  *jsonapi.JSONAPI   `json:"jsonapi"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if doc.JSONAPI == nil || doc.JSONAPI.Version != jsonapi.Version {
		t.Errorf("jsonapi = %+v", doc.JSONAPI)
	}
	if len(doc.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(doc.Data))
	}

	blue := doc.Data[0]
	if blue.Type != "album" || blue.ID != "1" {
		t.Errorf("first resource = %s/%s", blue.Type, blue.ID)
	}
	if blue.Attributes["title"] != "Blue" || blue.Attributes["price"] != "12.5" {
		t.Errorf("attributes = %v", blue.Attributes)
	}
	for _, key := range []string{"id", "vault_code", "notes", "artist", "tracks"} {
		if _, ok := blue.Attributes[key]; ok {
			t.Errorf("attribute %q should not be rendered", key)
		}
	}
	artist, _ := blue.Relationships["artist"].Data.(map[string]any)
	if artist["type"] != "artist" || artist["id"] != "7" {
		t.Errorf("artist relationship = %v", blue.Relationships["artist"])
	}
	tracks, _ := blue.Relationships["tracks"].Data.([]any)
	if len(tracks) != 2 {
		t.Errorf("tracks relationship = %v", blue.Relationships["tracks"])
	}

	// Unloaded belongs_to links through the foreign key.
	hejira := doc.Data[1]
	if rel, ok := hejira.Relationships["artist"]; !ok || fmt.Sprint(rel.Data.(map[string]any)["id"]) != "7" {
		t.Errorf("hejira artist relationship = %v", hejira.Relationships)
	}
	if _, ok := hejira.Relationships["tracks"]; ok {
		t.Error("unloaded has_many should have no relationship")
	}

	// The artist is included once, plus two tracks.
	if len(doc.Included) != 3 {
		t.Errorf("len(included) = %d, want 3: %+v", len(doc.Included), doc.Included)
	}

	if doc.Meta["count"] != float64(2) {
		t.Errorf("meta.count = %v", doc.Meta["count"])
	}
	pageMeta, _ := doc.Meta["page"].(map[string]any)
	if pageMeta["pages"] != float64(2) || pageMeta["total"] != float64(3) {
		t.Errorf("meta.page = %v", doc.Meta["page"])
	}
}

func TestJSONAPIFormatter_EmptyList(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONAPIFormatter().FormatList(&buf, testResource(), nil, FormatOptions{Compact: true}); err != nil {
		t.Fatalf("FormatList: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"data":[]`)) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestJSONAPIFormatter_Record(t *testing.T) {
	f := NewJSONAPIFormatter()
	res := testResource()

	var buf bytes.Buffer
	rec := testRecords()[0]
	rec["artist"] = nil
	if err := f.FormatRecord(&buf, res, rec, FormatOptions{Columns: []string{"title", "artist"}}); err != nil {
		t.Fatalf("FormatRecord: %v", err)
	}
	var doc struct {
		Data jsonapi.Resource `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Data.Attributes) != 1 || doc.Data.Attributes["title"] != "Blue" {
		t.Errorf("attributes = %v", doc.Data.Attributes)
	}
	rel, ok := doc.Data.Relationships["artist"]
	if !ok || rel.Data != nil {
		t.Errorf("artist relationship = %+v, want null linkage", doc.Data.Relationships)
	}

	buf.Reset()
	if err := f.FormatRecord(&buf, res, nil, FormatOptions{}); err != nil {
		t.Fatalf("FormatRecord(nil): %v", err)
	}
	if d := decodeDocument(t, &buf); len(d.Errors) != 1 || d.Errors[0].Status != "404" {
		t.Errorf("nil record errors = %+v", d.Errors)
	}
}

func TestJSONAPIFormatter_ValidationErrors(t *testing.T) {
	var buf bytes.Buffer
	err := NewJSONAPIFormatter().FormatRecord(&buf, testResource(), testRecords()[1], FormatOptions{
		Errors: map[string][]string{
			"title":     {"can't be blank"},
			record.Base: {"album is locked"},
		},
	})
	if err != nil {
		t.Fatalf("FormatRecord: %v", err)
	}

	doc := decodeDocument(t, &buf)
	if doc.Data != nil {
		t.Error("error document should have no data")
	}
	if len(doc.Errors) != 2 {
		t.Fatalf("errors = %+v", doc.Errors)
	}
	base, title := doc.Errors[0], doc.Errors[1]
	if base.Source.Pointer != "/data" || base.Detail != "album is locked" {
		t.Errorf("base error = %+v", base)
	}
	if title.Source.Pointer != "/data/attributes/title" || title.Detail != "title can't be blank" || title.StatusCode() != 422 {
		t.Errorf("title error = %+v", title)
	}
}

func TestJSONAPIFormatter_Error(t *testing.T) {
	tests := []struct {
		err    error
		status string
	}{
		{&record.NotFoundError{Resource: "album", Key: 9}, "404"},
		{fmt.Errorf("show album: %w", &authz.DeniedError{Resource: "album", Action: authz.ActionRead}), "403"},
		{errors.New("disk full"), "500"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewJSONAPIFormatter().FormatError(&buf, tt.err); err != nil {
			t.Fatalf("FormatError: %v", err)
		}
		doc := decodeDocument(t, &buf)
		if len(doc.Errors) != 1 || doc.Errors[0].Status != tt.status || doc.Errors[0].Detail != tt.err.Error() {
			t.Errorf("FormatError(%v) = %+v, want status %s", tt.err, doc.Errors, tt.status)
		}
	}
}
