/*
Package schema defines the types of declarative resource definitions.

A resource is a managed entity type: a table, its fields, its associations
to other resources, named scopes and per-operation defaults. The seven
operations (list, show, new, create, edit, update, destroy) are implicit.

# Resource Definition

A resource definition in YAML:

	resource: album

	fields:
	  title:       { type: string, required: true }
	  genre:       { type: enum, values: [rock, jazz, pop] }
	  released_on: { type: date }
	  price:       { type: decimal, constraints: [{ type: min, value: 0 }] }
	  artist_id:   { type: ref, to: artist }

	associations:
	  artist: { kind: belongs_to, to: artist }
	  tracks: { kind: has_many, to: track, dependent: destroy, nested: true }

	scopes:
	  rock:             { where: { genre: rock } }
	  released_in_year: { where: { year: $1 } }
	  cheaper_than:     { where: { price: { lt: $1 } } }

	defaults:
	  includes:   { all: [artist], list: [tracks] }
	  order:      { list: released_on desc }
	  page_size:  { list: 25 }
	  distinct:   { list: true }
	  attributes: { new: { genre: rock } }

# Field Types

  - string, text: text values
  - int, float, decimal: numbers; decimals are stored as exact text
  - bool: boolean
  - date, datetime: calendar dates and timestamps, parsed per locale
  - enum: one of values
  - ref: foreign key to another resource (requires to)
  - secret: hashed on save, never rendered
  - json: structured value
  - uuid, email, url: text with format validation

# Defaults

The defaults block maps an aspect (includes, select, order, scopes,
attributes, page_size, distinct, strategy) to operation keys. The key
"all" applies to every operation without its own entry.

# Scopes

A scope filters with where conditions and may reorder. A value of $N is
replaced by the Nth scope argument when the scope is applied.
*/
package schema
