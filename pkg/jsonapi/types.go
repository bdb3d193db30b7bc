// Package jsonapi renders JSON:API 1.1 documents (https://jsonapi.org).
// It covers what a record-oriented client reads: primary data, included
// resources, relationship linkage, meta and error objects.
package jsonapi

// Version is written to the jsonapi member of every document.
const Version = "1.1"

// Document is a top-level document. Data and Errors never appear together.
type Document struct {
	Data     any        `json:"data,omitempty"`
	Errors   []Error    `json:"errors,omitempty"`
	Meta     Meta       `json:"meta,omitempty"`
	Included []Resource `json:"included,omitempty"`
	JSONAPI  *JSONAPI   `json:"jsonapi,omitempty"`
}

// Resource is a resource object.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    map[string]any          `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// ResourceIdentifier identifies a resource in linkage and deduplication.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r Resource) identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: r.Type, ID: r.ID}
}

// Relationship holds resource linkage: nil, a ResourceIdentifier or a
// []ResourceIdentifier.
type Relationship struct {
	Data any `json:"data"`
}

// Error is an error object. Status holds an HTTP status code as a string,
// the vocabulary JSON:API clients expect even outside HTTP.
type Error struct {
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource points at the member of the request document at fault.
type ErrorSource struct {
	Pointer string `json:"pointer,omitempty"`
}

// Meta is free-form metadata.
type Meta map[string]any

// JSONAPI is the version object.
type JSONAPI struct {
	Version string `json:"version"`
}
