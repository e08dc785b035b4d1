// Package models defines the preference record types shared by the remote
// preference store, the local mirror, the preference service, and the HTTP
// API: saved search filters and favorite person/company entries.
//
// All records are owned by exactly one authenticated user and are immutable
// once created; they are only ever added and removed. Favorites use the
// referenced entity's id as their natural key, so "favorite the same person
// twice" resolves to a single record. Saved filters carry a client-generated
// [FilterID] that the remote store adopts as the record id.
//
// The Pending flag marks a record that was accepted locally while the remote
// store was unreachable and has not yet been confirmed upstream. It is
// cleared by the next successful direct write or by reconciliation.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind names a preference collection. It is the remote table name and the
// namespace component of the local mirror key for that collection.
type Kind string

const (
	KindSavedFilters      Kind = "saved_filters"
	KindFavoritePersons   Kind = "favorite_people"
	KindFavoriteCompanies Kind = "favorite_companies"
)

// TargetKind says which browsing screen a saved filter applies to.
type TargetKind string

const (
	TargetCompany TargetKind = "company"
	TargetPerson  TargetKind = "person"
)

// Criteria holds the saved filter's search fields. The preference layer
// treats it as opaque data: it is stored and returned verbatim and never
// interpreted here. The browsing screens own its schema.
type Criteria map[string]any

// ValidationError reports malformed input rejected before any write, local
// or remote.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Record is the common contract of all preference record types. The
// preference service and reconciler operate on it generically; the concrete
// types below carry the kind-specific fields.
type Record interface {
	// Key returns the identity of the record within its collection: the
	// filter id for saved filters, the referenced entity id for favorites.
	Key() string
	RecordOwner() UserID
	SetRecordOwner(UserID)
	PendingSync() bool
	SetPendingSync(bool)
	// SortTime orders listings newest first.
	SortTime() time.Time
	Validate() error
}

// SavedFilter is a user-named set of search criteria for one of the
// browsing screens.
type SavedFilter struct {
	ID        FilterID   `json:"id"`
	Owner     UserID     `json:"owner_id"`
	Target    TargetKind `json:"kind"`
	Name      string     `json:"name"`
	Criteria  Criteria   `json:"criteria,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Pending   bool       `json:"pending,omitempty"`
}

func (f *SavedFilter) Key() string             { return f.ID.String() }
func (f *SavedFilter) RecordOwner() UserID     { return f.Owner }
func (f *SavedFilter) SetRecordOwner(u UserID) { f.Owner = u }
func (f *SavedFilter) PendingSync() bool       { return f.Pending }
func (f *SavedFilter) SetPendingSync(p bool)   { f.Pending = p }
func (f *SavedFilter) SortTime() time.Time     { return f.CreatedAt }

func (f *SavedFilter) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	switch f.Target {
	case TargetCompany, TargetPerson:
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown target %q", f.Target)}
	}
	return nil
}

// FavoritePerson marks a person record as a favorite of its owner. The ID
// is the person's own identifier, not a synthetic favorite id. The display
// fields are denormalized at favorite-time so the favorites list renders
// without re-fetching the person.
type FavoritePerson struct {
	ID       string    `json:"id"`
	Owner    UserID    `json:"owner_id"`
	Name     string    `json:"name"`
	Position string    `json:"position,omitempty"`
	Company  string    `json:"company,omitempty"`
	AddedAt  time.Time `json:"added_at"`
	Pending  bool      `json:"pending,omitempty"`
}

func (p *FavoritePerson) Key() string             { return p.ID }
func (p *FavoritePerson) RecordOwner() UserID     { return p.Owner }
func (p *FavoritePerson) SetRecordOwner(u UserID) { p.Owner = u }
func (p *FavoritePerson) PendingSync() bool       { return p.Pending }
func (p *FavoritePerson) SetPendingSync(b bool)   { p.Pending = b }
func (p *FavoritePerson) SortTime() time.Time     { return p.AddedAt }

func (p *FavoritePerson) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must reference a person"}
	}
	return nil
}

// FavoriteCompany marks a company record as a favorite of its owner, with
// the same shape and rules as [FavoritePerson].
type FavoriteCompany struct {
	ID       string    `json:"id"`
	Owner    UserID    `json:"owner_id"`
	Name     string    `json:"name"`
	Type     string    `json:"type,omitempty"`
	Location string    `json:"location,omitempty"`
	AddedAt  time.Time `json:"added_at"`
	Pending  bool      `json:"pending,omitempty"`
}

func (c *FavoriteCompany) Key() string             { return c.ID }
func (c *FavoriteCompany) RecordOwner() UserID     { return c.Owner }
func (c *FavoriteCompany) SetRecordOwner(u UserID) { c.Owner = u }
func (c *FavoriteCompany) PendingSync() bool       { return c.Pending }
func (c *FavoriteCompany) SetPendingSync(b bool)   { c.Pending = b }
func (c *FavoriteCompany) SortTime() time.Time     { return c.AddedAt }

func (c *FavoriteCompany) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must reference a company"}
	}
	return nil
}

var (
	_ Record = (*SavedFilter)(nil)
	_ Record = (*FavoritePerson)(nil)
	_ Record = (*FavoriteCompany)(nil)
)
