package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"courserag/internal/models"
)

// SQLiteStore persists courses, materials, chunk embeddings and query
// history in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.RWMutex
	onChange ChangeHook
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// OnChange registers the hook fired after material upserts/deletes.
func (s *SQLiteStore) OnChange(h ChangeHook) {
	s.mu.Lock()
	s.onChange = h
	s.mu.Unlock()
}

func (s *SQLiteStore) fire(courseID string) {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook(courseID)
	}
}

func (s *SQLiteStore) UpsertCourse(ctx context.Context, c models.Course) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO courses(id,code,name) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET code=excluded.code, name=excluded.name`,
		c.ID, c.Code, c.Name)
	return err
}

func (s *SQLiteStore) GetCourse(ctx context.Context, id string) (models.Course, bool, error) {
	var c models.Course
	err := s.db.QueryRowContext(ctx, `SELECT id,code,name FROM courses WHERE id=?`, id).
		Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Course{}, false, nil
	}
	if err != nil {
		return models.Course{}, false, err
	}
	return c, true, nil
}

func (s *SQLiteStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,code,name FROM courses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertMaterial(ctx context.Context, m models.Material) error {
	if m.Created.IsZero() {
		m.Created = time.Now()
	}
	m.Updated = time.Now()
	kw, _ := json.Marshal(m.Keywords)
	meta, _ := json.Marshal(m.Metadata)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO materials(id,course_id,title,kind,text,keywords,metadata,created_at,updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET course_id=excluded.course_id, title=excluded.title,
		   kind=excluded.kind, text=excluded.text, keywords=excluded.keywords,
		   metadata=excluded.metadata, updated_at=excluded.updated_at`,
		m.ID, m.CourseID, m.Title, string(m.Kind), m.Text, string(kw), string(meta),
		m.Created.Format(time.RFC3339), m.Updated.Format(time.RFC3339))
	if err != nil {
		return err
	}
	// delete-then-insert keeps chunk rows consistent with the new text
	if _, err := tx.ExecContext(ctx, `DELETE FROM material_embeddings WHERE material_id=?`, m.ID); err != nil {
		return err
	}
	for i, chunk := range m.Embedding {
		vec, _ := json.Marshal(chunk)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO material_embeddings(material_id,ord,dim,vector) VALUES(?,?,?,?)`,
			m.ID, i, len(chunk), string(vec)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.fire(m.CourseID)
	return nil
}

func (s *SQLiteStore) DeleteMaterial(ctx context.Context, id string) error {
	var courseID string
	err := s.db.QueryRowContext(ctx, `SELECT course_id FROM materials WHERE id=?`, id).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM material_embeddings WHERE material_id=?`, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM materials WHERE id=?`, id); err != nil {
		return err
	}
	s.fire(courseID)
	return nil
}

func (s *SQLiteStore) GetMaterial(ctx context.Context, id string) (models.Material, bool, error) {
	rows, err := s.db.QueryContext(ctx, selectMaterials+` WHERE m.id=?`, id)
	if err != nil {
		return models.Material{}, false, err
	}
	ms, err := scanMaterials(rows)
	rows.Close()
	if err != nil || len(ms) == 0 {
		return models.Material{}, false, err
	}
	if err := s.attachEmbeddings(ctx, ms); err != nil {
		return models.Material{}, false, err
	}
	return ms[0], true, nil
}

// GetMaterials returns a course's materials (all courses when courseID is
// empty) with their chunk embeddings attached, ordered by id.
func (s *SQLiteStore) GetMaterials(ctx context.Context, courseID string) ([]models.Material, error) {
	q := selectMaterials
	args := []any{}
	if courseID != "" {
		q += ` WHERE m.course_id=?`
		args = append(args, courseID)
	}
	q += ` ORDER BY m.id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	ms, err := scanMaterials(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := s.attachEmbeddings(ctx, ms); err != nil {
		return nil, err
	}
	return ms, nil
}

const selectMaterials = `SELECT m.id,m.course_id,m.title,m.kind,m.text,m.keywords,m.metadata,m.created_at,m.updated_at FROM materials m`

func scanMaterials(rows *sql.Rows) ([]models.Material, error) {
	var out []models.Material
	for rows.Next() {
		var m models.Material
		var kind, kw, meta, created, updated string
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &kind, &m.Text, &kw, &meta, &created, &updated); err != nil {
			return nil, err
		}
		m.Kind = models.MaterialKind(kind)
		_ = json.Unmarshal([]byte(kw), &m.Keywords)
		_ = json.Unmarshal([]byte(meta), &m.Metadata)
		m.Created, _ = time.Parse(time.RFC3339, created)
		m.Updated, _ = time.Parse(time.RFC3339, updated)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// attachEmbeddings loads chunk vectors for the given materials. Separate from
// scanMaterials so sql.Rows are not nested on the single connection.
func (s *SQLiteStore) attachEmbeddings(ctx context.Context, ms []models.Material) error {
	for i := range ms {
		rows, err := s.db.QueryContext(ctx,
			`SELECT vector FROM material_embeddings WHERE material_id=? ORDER BY ord`, ms[i].ID)
		if err != nil {
			return err
		}
		var chunks [][]float32
		for rows.Next() {
			var vs string
			if err := rows.Scan(&vs); err != nil {
				rows.Close()
				return err
			}
			var vec []float32
			if err := json.Unmarshal([]byte(vs), &vec); err == nil && len(vec) > 0 {
				chunks = append(chunks, vec)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		ms[i].Embedding = chunks
	}
	return nil
}

func (s *SQLiteStore) RecordQuery(ctx context.Context, e models.QueryHistoryEntry) error {
	if e.AskedAt.IsZero() {
		e.AskedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_history(user_id,course_id,query,answered,cache_hit,asked_at) VALUES(?,?,?,?,?,?)`,
		e.UserID, e.CourseID, e.Query, boolInt(e.Answered), boolInt(e.CacheHit), e.AskedAt.Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) RecentQueries(ctx context.Context, userID, courseID string, limit int) ([]models.QueryHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT user_id,course_id,query,answered,cache_hit,asked_at FROM query_history`
	var conds []string
	var args []any
	if userID != "" {
		conds = append(conds, `user_id=?`)
		args = append(args, userID)
	}
	if courseID != "" {
		conds = append(conds, `course_id=?`)
		args = append(args, courseID)
	}
	for i, c := range conds {
		if i == 0 {
			q += ` WHERE ` + c
		} else {
			q += ` AND ` + c
		}
	}
	q += ` ORDER BY asked_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.QueryHistoryEntry
	for rows.Next() {
		var e models.QueryHistoryEntry
		var answered, cacheHit int
		var asked string
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.Query, &answered, &cacheHit, &asked); err != nil {
			return nil, err
		}
		e.Answered = answered == 1
		e.CacheHit = cacheHit == 1
		e.AskedAt, _ = time.Parse(time.RFC3339, asked)
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
