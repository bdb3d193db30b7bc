package jsonapi

// Compound assembles a document with primary data and the resources it
// links to. Each included resource appears once, in the order first added.
type Compound struct {
	doc  Document
	seen map[ResourceIdentifier]bool
}

// Single starts a document whose primary data is r.
func Single(r Resource) *Compound {
	return newCompound(r)
}

// Collection starts a document whose primary data is rs. A nil slice is
// rendered as an empty array.
func Collection(rs []Resource) *Compound {
	if rs == nil {
		rs = []Resource{}
	}
	return newCompound(rs)
}

func newCompound(data any) *Compound {
	return &Compound{
		doc:  Document{Data: data, JSONAPI: &JSONAPI{Version: Version}},
		seen: make(map[ResourceIdentifier]bool),
	}
}

// Include adds rs to the included resources, skipping any already there.
func (c *Compound) Include(rs ...Resource) *Compound {
	for _, r := range rs {
		id := r.identifier()
		if c.seen[id] {
			continue
		}
		c.seen[id] = true
		c.doc.Included = append(c.doc.Included, r)
	}
	return c
}

// Meta sets one meta member.
func (c *Compound) Meta(key string, value any) *Compound {
	if c.doc.Meta == nil {
		c.doc.Meta = Meta{}
	}
	c.doc.Meta[key] = value
	return c
}

// Document returns the assembled document.
func (c *Compound) Document() Document {
	return c.doc
}

// Failure returns a document carrying errs and no data.
func Failure(errs ...Error) Document {
	return Document{Errors: errs, JSONAPI: &JSONAPI{Version: Version}}
}
