package jsonapi

// Object builds a resource object.
type Object struct {
	r Resource
}

// NewObject starts a resource object of the given type and id.
func NewObject(typ, id string) *Object {
	return &Object{r: Resource{Type: typ, ID: id, Attributes: map[string]any{}}}
}

// Attributes copies attrs into the object. The id and type members are
// identity, never attributes, and are skipped.
func (o *Object) Attributes(attrs map[string]any) *Object {
	for k, v := range attrs {
		if k == "id" || k == "type" {
			continue
		}
		o.r.Attributes[k] = v
	}
	return o
}

// ToOne links name to one resource, or to nothing when id is empty.
func (o *Object) ToOne(name, typ, id string) *Object {
	var data any
	if id != "" {
		data = ResourceIdentifier{Type: typ, ID: id}
	}
	return o.relate(name, data)
}

// ToMany links name to the resources with the given ids. No ids is an
// empty array, not null.
func (o *Object) ToMany(name, typ string, ids []string) *Object {
	linkage := make([]ResourceIdentifier, 0, len(ids))
	for _, id := range ids {
		linkage = append(linkage, ResourceIdentifier{Type: typ, ID: id})
	}
	return o.relate(name, linkage)
}

func (o *Object) relate(name string, data any) *Object {
	if o.r.Relationships == nil {
		o.r.Relationships = map[string]Relationship{}
	}
	o.r.Relationships[name] = Relationship{Data: data}
	return o
}

// Resource returns the built resource object.
func (o *Object) Resource() Resource {
	return o.r
}
