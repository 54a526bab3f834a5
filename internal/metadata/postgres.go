package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"geometa.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Keywords live in a jsonb
// column; keyword search matches title, abstract and the keyword list.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const recordColumns = `id, title, abstract, keywords, coalesce(organization_id,''), owner_id, status, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.Status == "" {
		rec.Status = StatusDraft
	}
	keywords, _ := json.Marshal(rec.Keywords)
	_, err := s.db.ExecContext(ctx, `
		insert into metadata_records(id, title, abstract, keywords, organization_id, owner_id, status)
		values($1,$2,$3,$4,nullif($5,''),$6,$7)
	`, rec.ID, rec.Title, rec.Abstract, keywords, rec.OrganizationID, rec.OwnerID, string(rec.Status))
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+recordColumns+` from metadata_records where id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) Update(ctx context.Context, id string, upd Update) (*Record, error) {
	sets := []string{"updated_at=now()"}
	args := []any{id}
	next := 2
	if upd.Title != nil {
		sets = append(sets, fmt.Sprintf("title=$%d", next))
		args = append(args, *upd.Title)
		next++
	}
	if upd.Abstract != nil {
		sets = append(sets, fmt.Sprintf("abstract=$%d", next))
		args = append(args, *upd.Abstract)
		next++
	}
	if upd.Keywords != nil {
		keywords, _ := json.Marshal(upd.Keywords)
		sets = append(sets, fmt.Sprintf("keywords=$%d", next))
		args = append(args, keywords)
		next++
	}

	query := `update metadata_records set ` + strings.Join(sets, ", ") +
		` where id=$1 returning ` + recordColumns
	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) SetStatus(ctx context.Context, id string, status Status) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		update metadata_records set status=$2, updated_at=now()
		where id=$1
		returning `+recordColumns, id, string(status))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from metadata_records where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Search(ctx context.Context, q Query) ([]*Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Keyword != "" {
		p := arg("%" + strings.ToLower(q.Keyword) + "%")
		where = append(where, fmt.Sprintf("(lower(title) like %s or lower(abstract) like %s or lower(keywords::text) like %s)", p, p, p))
	}
	if q.OrganizationID != "" {
		where = append(where, "organization_id="+arg(q.OrganizationID))
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id="+arg(q.OwnerID))
	}
	if q.Status != "" {
		where = append(where, "status="+arg(string(q.Status)))
	}

	query := `select ` + recordColumns + ` from metadata_records`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc limit ` + arg(q.Limit) + ` offset ` + arg(q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec      Record
		keywords []byte
		status   string
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Abstract, &keywords, &rec.OrganizationID, &rec.OwnerID, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if len(keywords) > 0 {
		_ = json.Unmarshal(keywords, &rec.Keywords)
	}
	return &rec, nil
}
