package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// --------------------------------------------------------------------------
// Free-form Documents
// --------------------------------------------------------------------------

// Document is a free-form document passed through to the store. It keeps the raw
// JSON (Extended JSON is accepted, e.g. {"$oid": "..."}) and is converted into an
// ordered bson.D only when the handler runs, so key order is preserved.
type Document json.RawMessage

func (d *Document) UnmarshalJSON(b []byte) error {
	*d = append((*d)[:0], b...)
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// IsSet reports whether the document was provided (and is not null)
func (d Document) IsSet() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// BSON decodes the document. An unset document decodes to an empty bson.D.
func (d Document) BSON() (bson.D, error) {
	if !d.IsSet() {
		return bson.D{}, nil
	}
	var out bson.D
	if err := bson.UnmarshalExtJSON(d, false, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = bson.D{}
	}
	return out, nil
}

// optionalBSON decodes the document or returns nil if it is unset
func (d Document) optionalBSON() (bson.D, error) {
	if !d.IsSet() {
		return nil, nil
	}
	return d.BSON()
}

// decodeAll decodes a list of documents
func decodeAll(list []Document) ([]bson.D, error) {
	out := make([]bson.D, 0, len(list))
	for i, d := range list {
		b, err := d.BSON()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Common Parameters
// --------------------------------------------------------------------------

// Common holds the parameters every operation accepts
type Common struct {
	URL string `json:"url,omitempty"`
}

type dbParams struct {
	Common
	DB string `json:"db"`
}

func (p dbParams) target() store.Target { return store.Target{DB: p.DB} }

type collParams struct {
	Common
	DB         string `json:"db"`
	Collection string `json:"collection"`
}

func (p collParams) target() store.Target { return store.Target{DB: p.DB, Collection: p.Collection} }

// targeted is implemented by parameter structs that reference a database or collection
type targeted interface {
	target() store.Target
}

// RoleParam accepts either a plain role name or a {role, db} object
type RoleParam store.Role

func (r *RoleParam) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = RoleParam{Role: name}
		return nil
	}
	var full store.Role
	if err := json.Unmarshal(b, &full); err != nil {
		return err
	}
	*r = RoleParam(full)
	return nil
}

func toRoles(in []RoleParam) []store.Role {
	if in == nil {
		return nil
	}
	out := make([]store.Role, len(in))
	for i, r := range in {
		out[i] = store.Role(r)
	}
	return out
}

// fieldRef turns a field name into a "$field" reference, leaving references untouched
func fieldRef(field string) string {
	if strings.HasPrefix(field, "$") {
		return field
	}
	return "$" + field
}
