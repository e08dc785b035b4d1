package models

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// UserID is the opaque identifier of the authenticated owner of a
// preference record. It is issued by the identity provider and used as the
// partition key for every remote and local read and write; this layer never
// interprets its contents.
type UserID string

func (u UserID) String() string { return string(u) }
func (u UserID) IsZero() bool   { return u == "" }

// FilterID is a typed ID for saved filters. Filter ids are generated on the
// client (a UUID) and adopted by the remote store as the record id, so a
// filter created offline keeps its id once it is pushed upstream. The UUID
// doubles as the idempotency key for re-pushed inserts.
type FilterID struct {
	uuid uuid.UUID
}

func NewFilterID() FilterID {
	return FilterID{uuid: uuid.New()}
}

func ParseFilterID(s string) (FilterID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FilterID{}, fmt.Errorf("invalid filter ID: %w", err)
	}
	return FilterID{uuid: id}, nil
}

func (f FilterID) UUID() uuid.UUID { return f.uuid }
func (f FilterID) String() string  { return f.uuid.String() }
func (f FilterID) IsZero() bool    { return f.uuid == uuid.Nil }

func (f FilterID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: string(KindSavedFilters),
		ID:    f.uuid.String(),
	}
}

func (f FilterID) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.uuid.String())
}

func (f *FilterID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	f.uuid = id
	return nil
}

func (f FilterID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{string(KindSavedFilters), f.uuid.String()},
	})
}

func (f *FilterID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, string(KindSavedFilters), &f.uuid)
}

// unmarshalCBORID decodes a SurrealDB record id tag back into a UUID,
// accepting either the tagged [table, id] pair or a plain string.
func unmarshalCBORID(data []byte, table string, dst *uuid.UUID) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err == nil && tag.Number == 8 {
		if parts, ok := tag.Content.([]any); ok && len(parts) == 2 {
			gotTable, _ := parts[0].(string)
			if gotTable != table {
				return fmt.Errorf("unexpected record table %q, want %q", gotTable, table)
			}
			s, ok := parts[1].(string)
			if !ok {
				return fmt.Errorf("unexpected record id type %T", parts[1])
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return err
			}
			*dst = id
			return nil
		}
	}
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*dst = id
	return nil
}
