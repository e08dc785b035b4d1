// Package surreal implements the remote preference store contract against
// SurrealDB, the authoritative multi-tenant backend for saved filters and
// favorites.
//
// One table holds each preference kind: saved_filters, favorite_people and
// favorite_companies. Saved filters use the client-generated UUID as the
// record id; favorites use a composite record id of [owner_id, entity_id],
// which is the uniqueness constraint that makes "add to favorites" an
// ensure-membership operation. Inserts go through INSERT IGNORE so a
// conflicting insert is a no-op that leaves the existing record untouched,
// and a retried insert for the same key can never produce a duplicate row.
//
// Every query is parameterized and filtered by owner_id; no access pattern
// that crosses owners exists. Transport and server failures of any shape
// are collapsed into [github.com/orgbook/prefsync/pkg/store.ErrRemoteUnavailable]
// before they reach the caller.
//
// The connection uses the surrealcbor codec over a gorilla websocket.
// SurrealDB speaks CBOR internally; the custom codec keeps time.Time and
// record ids in the exact format the server expects.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/store"
)

// Config carries the connection settings for the remote store.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/rpc.
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store holds the SurrealDB connection and hands out the per-kind remote
// collections.
type Store struct {
	db *surrealdb.DB
}

// Open dials SurrealDB, authenticates when credentials are configured, and
// selects the namespace and database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse SurrealDB URL: %w", err)
	}

	conf := connection.NewConfig(u)

	// SurrealDB stores data as CBOR; the surrealcbor codec keeps
	// time.Time and RecordID values in the server's native format.
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("authenticate to SurrealDB: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("use namespace/database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) Filters() store.Remote[*models.SavedFilter] {
	return filters{db: s.db}
}

func (s *Store) FavoritePersons() store.Remote[*models.FavoritePerson] {
	return persons{db: s.db}
}

func (s *Store) FavoriteCompanies() store.Remote[*models.FavoriteCompany] {
	return companies{db: s.db}
}

// unavailable collapses any remote failure into the single condition the
// preference service degrades on, keeping the cause in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, store.ErrRemoteUnavailable, err)
}

// queryRows unwraps the first statement's rows from a query response.
func queryRows[T any](res *[]surrealdb.QueryResult[[]T]) []T {
	if res == nil || len(*res) == 0 {
		return nil
	}
	return (*res)[0].Result
}

// favoriteRecordID builds the composite record id enforcing at most one
// favorite per (owner, entity) pair per table.
func favoriteRecordID(table string, owner models.UserID, entity string) surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: table,
		ID:    []any{owner.String(), entity},
	}
}

// filters is the saved_filters table.
type filters struct {
	db *surrealdb.DB
}

type filterRow struct {
	ID        surrealdb_models.RecordID `json:"id"`
	OwnerID   string                    `json:"owner_id"`
	Kind      string                    `json:"kind"`
	Name      string                    `json:"name"`
	Criteria  models.Criteria           `json:"criteria,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

func (r filterRow) model() (*models.SavedFilter, error) {
	id, err := models.ParseFilterID(fmt.Sprint(r.ID.ID))
	if err != nil {
		return nil, fmt.Errorf("decode saved filter id: %w", err)
	}
	return &models.SavedFilter{
		ID:        id,
		Owner:     models.UserID(r.OwnerID),
		Target:    models.TargetKind(r.Kind),
		Name:      r.Name,
		Criteria:  r.Criteria,
		CreatedAt: r.CreatedAt,
	}, nil
}

func (f filters) List(ctx context.Context, owner models.UserID) ([]*models.SavedFilter, error) {
	res, err := surrealdb.Query[[]filterRow](ctx, f.db,
		"SELECT * FROM saved_filters WHERE owner_id = $owner ORDER BY created_at DESC",
		map[string]any{"owner": owner.String()})
	if err != nil {
		return nil, unavailable("list saved filters", err)
	}
	rows := queryRows(res)
	out := make([]*models.SavedFilter, 0, len(rows))
	for _, row := range rows {
		rec, err := row.model()
		if err != nil {
			return nil, unavailable("list saved filters", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f filters) Insert(ctx context.Context, rec *models.SavedFilter) (*models.SavedFilter, bool, error) {
	content := map[string]any{
		"id":         rec.ID.RecordID(),
		"owner_id":   rec.Owner.String(),
		"kind":       string(rec.Target),
		"name":       rec.Name,
		"criteria":   rec.Criteria,
		"created_at": rec.CreatedAt,
	}
	res, err := surrealdb.Query[[]filterRow](ctx, f.db,
		"INSERT IGNORE INTO saved_filters $content",
		map[string]any{"content": content})
	if err != nil {
		return nil, false, unavailable("insert saved filter", err)
	}
	if rows := queryRows(res); len(rows) > 0 {
		stored, merr := rows[0].model()
		if merr != nil {
			return nil, false, unavailable("insert saved filter", merr)
		}
		return stored, true, nil
	}
	// Id conflict: the insert was ignored, return the existing record.
	existing, err := f.get(ctx, rec.Owner, rec.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, unavailable("insert saved filter", errors.New("record neither inserted nor found"))
	}
	return existing, false, nil
}

func (f filters) get(ctx context.Context, owner models.UserID, id models.FilterID) (*models.SavedFilter, error) {
	res, err := surrealdb.Query[[]filterRow](ctx, f.db,
		"SELECT * FROM saved_filters WHERE id = $id AND owner_id = $owner",
		map[string]any{"id": id.RecordID(), "owner": owner.String()})
	if err != nil {
		return nil, unavailable("get saved filter", err)
	}
	rows := queryRows(res)
	if len(rows) == 0 {
		return nil, nil
	}
	rec, merr := rows[0].model()
	if merr != nil {
		return nil, unavailable("get saved filter", merr)
	}
	return rec, nil
}

func (f filters) Remove(ctx context.Context, owner models.UserID, key string) (bool, error) {
	id, err := models.ParseFilterID(key)
	if err != nil {
		// A key that never was a filter id cannot name a remote record.
		return false, nil
	}
	res, err := surrealdb.Query[[]filterRow](ctx, f.db,
		"DELETE saved_filters WHERE id = $id AND owner_id = $owner RETURN BEFORE",
		map[string]any{"id": id.RecordID(), "owner": owner.String()})
	if err != nil {
		return false, unavailable("delete saved filter", err)
	}
	return len(queryRows(res)) > 0, nil
}

func (f filters) Exists(ctx context.Context, owner models.UserID, key string) (bool, error) {
	id, err := models.ParseFilterID(key)
	if err != nil {
		return false, nil
	}
	res, err := surrealdb.Query[[]string](ctx, f.db,
		"SELECT VALUE owner_id FROM saved_filters WHERE id = $id AND owner_id = $owner",
		map[string]any{"id": id.RecordID(), "owner": owner.String()})
	if err != nil {
		return false, unavailable("check saved filter", err)
	}
	return len(queryRows(res)) > 0, nil
}

// persons is the favorite_people table.
type persons struct {
	db *surrealdb.DB
}

type personRow struct {
	ID       surrealdb_models.RecordID `json:"id"`
	EntityID string                    `json:"entity_id"`
	OwnerID  string                    `json:"owner_id"`
	Name     string                    `json:"name"`
	Position string                    `json:"position,omitempty"`
	Company  string                    `json:"company,omitempty"`
	AddedAt  time.Time                 `json:"added_at"`
}

func (r personRow) model() *models.FavoritePerson {
	return &models.FavoritePerson{
		ID:       r.EntityID,
		Owner:    models.UserID(r.OwnerID),
		Name:     r.Name,
		Position: r.Position,
		Company:  r.Company,
		AddedAt:  r.AddedAt,
	}
}

func (p persons) List(ctx context.Context, owner models.UserID) ([]*models.FavoritePerson, error) {
	res, err := surrealdb.Query[[]personRow](ctx, p.db,
		"SELECT * FROM favorite_people WHERE owner_id = $owner ORDER BY added_at DESC",
		map[string]any{"owner": owner.String()})
	if err != nil {
		return nil, unavailable("list favorite persons", err)
	}
	rows := queryRows(res)
	out := make([]*models.FavoritePerson, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (p persons) Insert(ctx context.Context, rec *models.FavoritePerson) (*models.FavoritePerson, bool, error) {
	content := map[string]any{
		"id":        favoriteRecordID(string(models.KindFavoritePersons), rec.Owner, rec.ID),
		"entity_id": rec.ID,
		"owner_id":  rec.Owner.String(),
		"name":      rec.Name,
		"position":  rec.Position,
		"company":   rec.Company,
		"added_at":  rec.AddedAt,
	}
	res, err := surrealdb.Query[[]personRow](ctx, p.db,
		"INSERT IGNORE INTO favorite_people $content",
		map[string]any{"content": content})
	if err != nil {
		return nil, false, unavailable("insert favorite person", err)
	}
	if rows := queryRows(res); len(rows) > 0 {
		return rows[0].model(), true, nil
	}
	existing, err := p.get(ctx, rec.Owner, rec.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, unavailable("insert favorite person", errors.New("record neither inserted nor found"))
	}
	return existing, false, nil
}

func (p persons) get(ctx context.Context, owner models.UserID, entity string) (*models.FavoritePerson, error) {
	res, err := surrealdb.Query[[]personRow](ctx, p.db,
		"SELECT * FROM favorite_people WHERE owner_id = $owner AND entity_id = $entity",
		map[string]any{"owner": owner.String(), "entity": entity})
	if err != nil {
		return nil, unavailable("get favorite person", err)
	}
	rows := queryRows(res)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (p persons) Remove(ctx context.Context, owner models.UserID, key string) (bool, error) {
	res, err := surrealdb.Query[[]personRow](ctx, p.db,
		"DELETE favorite_people WHERE owner_id = $owner AND entity_id = $entity RETURN BEFORE",
		map[string]any{"owner": owner.String(), "entity": key})
	if err != nil {
		return false, unavailable("delete favorite person", err)
	}
	return len(queryRows(res)) > 0, nil
}

func (p persons) Exists(ctx context.Context, owner models.UserID, key string) (bool, error) {
	res, err := surrealdb.Query[[]string](ctx, p.db,
		"SELECT VALUE entity_id FROM favorite_people WHERE owner_id = $owner AND entity_id = $entity",
		map[string]any{"owner": owner.String(), "entity": key})
	if err != nil {
		return false, unavailable("check favorite person", err)
	}
	return len(queryRows(res)) > 0, nil
}

// companies is the favorite_companies table.
type companies struct {
	db *surrealdb.DB
}

type companyRow struct {
	ID       surrealdb_models.RecordID `json:"id"`
	EntityID string                    `json:"entity_id"`
	OwnerID  string                    `json:"owner_id"`
	Name     string                    `json:"name"`
	Type     string                    `json:"type,omitempty"`
	Location string                    `json:"location,omitempty"`
	AddedAt  time.Time                 `json:"added_at"`
}

func (r companyRow) model() *models.FavoriteCompany {
	return &models.FavoriteCompany{
		ID:       r.EntityID,
		Owner:    models.UserID(r.OwnerID),
		Name:     r.Name,
		Type:     r.Type,
		Location: r.Location,
		AddedAt:  r.AddedAt,
	}
}

func (c companies) List(ctx context.Context, owner models.UserID) ([]*models.FavoriteCompany, error) {
	res, err := surrealdb.Query[[]companyRow](ctx, c.db,
		"SELECT * FROM favorite_companies WHERE owner_id = $owner ORDER BY added_at DESC",
		map[string]any{"owner": owner.String()})
	if err != nil {
		return nil, unavailable("list favorite companies", err)
	}
	rows := queryRows(res)
	out := make([]*models.FavoriteCompany, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (c companies) Insert(ctx context.Context, rec *models.FavoriteCompany) (*models.FavoriteCompany, bool, error) {
	content := map[string]any{
		"id":        favoriteRecordID(string(models.KindFavoriteCompanies), rec.Owner, rec.ID),
		"entity_id": rec.ID,
		"owner_id":  rec.Owner.String(),
		"name":      rec.Name,
		"type":      rec.Type,
		"location":  rec.Location,
		"added_at":  rec.AddedAt,
	}
	res, err := surrealdb.Query[[]companyRow](ctx, c.db,
		"INSERT IGNORE INTO favorite_companies $content",
		map[string]any{"content": content})
	if err != nil {
		return nil, false, unavailable("insert favorite company", err)
	}
	if rows := queryRows(res); len(rows) > 0 {
		return rows[0].model(), true, nil
	}
	existing, err := c.get(ctx, rec.Owner, rec.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, unavailable("insert favorite company", errors.New("record neither inserted nor found"))
	}
	return existing, false, nil
}

func (c companies) get(ctx context.Context, owner models.UserID, entity string) (*models.FavoriteCompany, error) {
	res, err := surrealdb.Query[[]companyRow](ctx, c.db,
		"SELECT * FROM favorite_companies WHERE owner_id = $owner AND entity_id = $entity",
		map[string]any{"owner": owner.String(), "entity": entity})
	if err != nil {
		return nil, unavailable("get favorite company", err)
	}
	rows := queryRows(res)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (c companies) Remove(ctx context.Context, owner models.UserID, key string) (bool, error) {
	res, err := surrealdb.Query[[]companyRow](ctx, c.db,
		"DELETE favorite_companies WHERE owner_id = $owner AND entity_id = $entity RETURN BEFORE",
		map[string]any{"owner": owner.String(), "entity": key})
	if err != nil {
		return false, unavailable("delete favorite company", err)
	}
	return len(queryRows(res)) > 0, nil
}

func (c companies) Exists(ctx context.Context, owner models.UserID, key string) (bool, error) {
	res, err := surrealdb.Query[[]string](ctx, c.db,
		"SELECT VALUE entity_id FROM favorite_companies WHERE owner_id = $owner AND entity_id = $entity",
		map[string]any{"owner": owner.String(), "entity": key})
	if err != nil {
		return false, unavailable("check favorite company", err)
	}
	return len(queryRows(res)) > 0, nil
}
