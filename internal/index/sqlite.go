package index

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/semdoc/internal/storage"
)

// Compile-time check that SQLiteIndex implements VectorIndex.
var _ VectorIndex = (*SQLiteIndex)(nil)

// SQLiteIndex stores points of one collection in SQLite and answers k-NN
// queries by brute-force cosine similarity over the rows that pass the filter.
// Category and source type are indexed columns; tags live in point_tags.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	dimension  int
}

// NewSQLiteIndex binds an index to a collection created by
// storage.Store.EnsureCollection.
func NewSQLiteIndex(db *sql.DB, c storage.Collection) *SQLiteIndex {
	return &SQLiteIndex{db: db, collection: c.Name, dimension: c.Dimension}
}

// Dimension returns the vector length this index accepts.
func (s *SQLiteIndex) Dimension() int {
	return s.dimension
}

func (s *SQLiteIndex) checkVector(id string, v []float32) error {
	if len(v) != s.dimension {
		return fmt.Errorf("%w: point %q has %d dimensions, collection %s expects %d",
			ErrDimensionMismatch, id, len(v), s.collection, s.dimension)
	}
	return nil
}

// Upsert writes all points in a single transaction, replacing vector, payload
// and tag rows of any existing point with the same id.
func (s *SQLiteIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("upserting point: empty id")
		}
		if err := s.checkVector(p.ID, p.Vector); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backendErr("beginning upsert transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, vector, payload, category, source_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			vector = excluded.vector,
			payload = excluded.payload,
			category = excluded.category,
			source_type = excluded.source_type`)
	if err != nil {
		return backendErr("preparing upsert statement", err)
	}
	defer stmt.Close()

	for _, p := range points {
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, p.ID, encodeFloat32s(p.Vector), string(payloadJSON),
			nullable(p.Payload.Category), nullable(p.Payload.SourceType)); err != nil {
			return backendErr("upserting point "+p.ID, err)
		}
		if err := s.replaceTags(ctx, tx, p.ID, p.Payload.Tags); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return backendErr("committing upsert", err)
	}
	return nil
}

// SetPayload overwrites payload columns and tag rows; the vector blob is not touched.
func (s *SQLiteIndex) SetPayload(ctx context.Context, id string, payload Payload) (bool, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encoding payload for %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, backendErr("beginning payload transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE points SET payload = ?, category = ?, source_type = ?
		WHERE collection = ? AND id = ?`,
		string(payloadJSON), nullable(payload.Category), nullable(payload.SourceType), s.collection, id)
	if err != nil {
		return false, backendErr("updating payload of "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, backendErr("checking updated rows", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := s.replaceTags(ctx, tx, id, payload.Tags); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, backendErr("committing payload update", err)
	}
	return true, nil
}

func (s *SQLiteIndex) replaceTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM point_tags WHERE collection = ? AND point_id = ?`, s.collection, id); err != nil {
		return backendErr("clearing tags of "+id, err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO point_tags (collection, point_id, tag) VALUES (?, ?, ?)`,
			s.collection, id, tag); err != nil {
			return backendErr("inserting tag of "+id, err)
		}
	}
	return nil
}

// Retrieve returns existing points among ids, in first-occurrence order.
func (s *SQLiteIndex) Retrieve(ctx context.Context, ids []string, withVector bool) ([]Point, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	cols := "id, payload"
	if withVector {
		cols = "id, payload, vector"
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + cols + ` FROM points WHERE collection = ? AND id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, backendErr("querying by ids", err)
	}
	defer rows.Close()

	found := make(map[string]Point, len(ids))
	for rows.Next() {
		var p Point
		var payloadJSON string
		var blob []byte
		dest := []any{&p.ID, &payloadJSON}
		if withVector {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, backendErr("scanning row", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			return nil, fmt.Errorf("decoding payload for %s: %w", p.ID, err)
		}
		if withVector {
			if p.Vector, err = decodeFloat32s(blob); err != nil {
				return nil, fmt.Errorf("decoding vector for %s: %w", p.ID, err)
			}
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("iterating rows", err)
	}

	points := make([]Point, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			points = append(points, p)
		}
	}
	return points, nil
}

// Delete removes a point and its tag rows.
func (s *SQLiteIndex) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, backendErr("beginning delete transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM points WHERE collection = ? AND id = ?", s.collection, id)
	if err != nil {
		return false, backendErr("deleting point "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, backendErr("checking deleted rows", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM point_tags WHERE collection = ? AND point_id = ?`, s.collection, id); err != nil {
		return false, backendErr("deleting tags of "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, backendErr("committing delete", err)
	}
	return true, nil
}

// Search scans id + vector of the filter-matching rows to find the top
// candidates, then fetches payloads only for the winners.
func (s *SQLiteIndex) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	if req.Limit <= 0 {
		return nil, nil
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkVector("query", req.Vector); err != nil {
		return nil, err
	}
	queryNorm := norm(req.Vector)
	if queryNorm == 0 {
		return nil, nil
	}

	query := `SELECT id, vector FROM points WHERE collection = ?`
	args := []any{s.collection}
	if pred, predArgs := req.Filter.sqlPredicate(s.collection); pred != "" {
		query += " AND " + pred
		args = append(args, predArgs...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, backendErr("querying vectors", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, backendErr("scanning row", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", id, err)
		}

		cand := idScore{ID: id, Score: cosine(req.Vector, buf, queryNorm)}
		if cand.Score < req.ScoreThreshold {
			continue
		}
		if h.Len() < req.Limit {
			heap.Push(h, cand)
		} else if ranksBefore(cand, (*h)[0]) {
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("iterating rows", err)
	}
	rows.Close()

	if h.Len() == 0 {
		return nil, nil
	}

	top := make([]idScore, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(idScore)
	}

	ids := make([]string, len(top))
	for i, c := range top {
		ids[i] = c.ID
	}
	points, err := s.Retrieve(ctx, ids, false)
	if err != nil {
		return nil, err
	}
	payloads := make(map[string]Payload, len(points))
	for _, p := range points {
		payloads[p.ID] = p.Payload
	}

	results := make([]ScoredPoint, 0, len(top))
	for _, c := range top {
		payload, ok := payloads[c.ID]
		if !ok {
			// Deleted between the scan and the fetch.
			continue
		}
		results = append(results, ScoredPoint{ID: c.ID, Score: c.Score, Payload: payload})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return ranksBefore(idScore{results[i].ID, results[i].Score}, idScore{results[j].ID, results[j].Score})
	})
	return results, nil
}

// Scroll reads one page in ascending id order using After as a keyset cursor,
// so a full pass never repeats an id even while other writers are active.
func (s *SQLiteIndex) Scroll(ctx context.Context, req ScrollRequest) (ScrollPage, error) {
	if req.Limit <= 0 {
		return ScrollPage{}, nil
	}
	if err := req.Filter.Validate(); err != nil {
		return ScrollPage{}, err
	}

	query := `SELECT id, payload FROM points WHERE collection = ?`
	args := []any{s.collection}
	if req.After != "" {
		query += " AND id > ?"
		args = append(args, req.After)
	}
	if pred, predArgs := req.Filter.sqlPredicate(s.collection); pred != "" {
		query += " AND " + pred
		args = append(args, predArgs...)
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"
	args = append(args, req.Limit, max(req.Skip, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ScrollPage{}, backendErr("scrolling points", err)
	}
	defer rows.Close()

	var page ScrollPage
	for rows.Next() {
		var p Point
		var payloadJSON string
		if err := rows.Scan(&p.ID, &payloadJSON); err != nil {
			return ScrollPage{}, backendErr("scanning row", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			return ScrollPage{}, fmt.Errorf("decoding payload for %s: %w", p.ID, err)
		}
		page.Points = append(page.Points, p)
	}
	if err := rows.Err(); err != nil {
		return ScrollPage{}, backendErr("iterating rows", err)
	}

	if len(page.Points) == req.Limit {
		page.NextAfter = page.Points[len(page.Points)-1].ID
	}
	return page, nil
}

// Count returns the number of points in the collection.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", s.collection).Scan(&count); err != nil {
		return 0, backendErr("counting points", err)
	}
	return count, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
