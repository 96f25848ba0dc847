package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xxxsen/quizpack/internal/model"
	"github.com/xxxsen/quizpack/internal/pkg/dbutil"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
)

type PackageRepo struct {
	db *sql.DB
}

func NewPackageRepo(db *sql.DB) *PackageRepo {
	return &PackageRepo{db: db}
}

// CreateTree writes a whole package in one transaction. A package left by an
// earlier attempt of the same job is replaced.
func (r *PackageRepo) CreateTree(ctx context.Context, jobID string, pkg *model.Package) error {
	now := time.Now().Unix()
	if pkg.Ctime == 0 {
		pkg.Ctime = now
	}
	pkg.Mtime = now
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if jobID != "" {
			if _, err := dbutil.Delete(ctx, tx, "packages", map[string]interface{}{"source_job_id": jobID}); err != nil {
				return err
			}
		}
		row, err := packageRow(pkg)
		if err != nil {
			return err
		}
		row["source_job_id"] = jobID
		if err := dbutil.Insert(ctx, tx, "packages", []map[string]interface{}{row}); err != nil {
			return err
		}
		return insertChildren(ctx, tx, pkg)
	})
}

// SaveStructure replaces the tours, blocks and questions of an existing
// package and updates its package level fields.
func (r *PackageRepo) SaveStructure(ctx context.Context, pkg *model.Package) error {
	pkg.Mtime = time.Now().Unix()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		editors, err := encodeStrings(pkg.Editors)
		if err != nil {
			return err
		}
		media, err := encodeStrings(pkg.Media)
		if err != nil {
			return err
		}
		affected, err := dbutil.Update(ctx, tx, "packages",
			map[string]interface{}{"id": pkg.ID},
			map[string]interface{}{
				"title":          pkg.Title,
				"preamble":       pkg.Preamble,
				"numbering_mode": string(pkg.NumberingMode),
				"editors_json":   editors,
				"media_json":     media,
				"mtime":          pkg.Mtime,
			})
		if err != nil {
			return err
		}
		if affected == 0 {
			return appErr.ErrNotFound
		}
		for _, table := range []string{"questions", "blocks", "tours"} {
			if _, err := dbutil.Delete(ctx, tx, table, map[string]interface{}{"package_id": pkg.ID}); err != nil {
				return err
			}
		}
		return insertChildren(ctx, tx, pkg)
	})
}

// LoadTree reads a package with its tours, blocks and questions in order.
func (r *PackageRepo) LoadTree(ctx context.Context, userID, packageID string) (*model.Package, error) {
	pkg, err := r.loadPackage(ctx, userID, packageID)
	if err != nil {
		return nil, err
	}
	if err := r.loadTours(ctx, pkg); err != nil {
		return nil, err
	}
	blocks, err := r.loadBlocks(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	questions, err := r.loadQuestions(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	for i := range pkg.Tours {
		t := &pkg.Tours[i]
		t.Blocks = blocks[t.ID]
		for j := range t.Blocks {
			t.Blocks[j].Questions = questions[t.Blocks[j].ID]
		}
		if len(t.Blocks) == 0 {
			t.Questions = questions[t.ID]
		}
	}
	return pkg, nil
}

func (r *PackageRepo) loadPackage(ctx context.Context, userID, packageID string) (*model.Package, error) {
	where := map[string]interface{}{"id": packageID, "user_id": userID}
	fields := []string{"id", "user_id", "title", "description", "preamble", "numbering_mode", "tags_json", "editors_json", "media_json", "ctime", "mtime"}
	row, err := dbutil.SelectRow(ctx, r.db, "packages", where, fields)
	if err != nil {
		return nil, err
	}
	var pkg model.Package
	var mode, tags, editors, media string
	err = row.Scan(
		&pkg.ID, &pkg.UserID, &pkg.Title, &pkg.Description, &pkg.Preamble, &mode,
		&tags, &editors, &media, &pkg.Ctime, &pkg.Mtime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	pkg.NumberingMode = model.NumberingMode(mode)
	pkg.Tags = decodeStrings(tags)
	pkg.Editors = decodeStrings(editors)
	pkg.Media = decodeStrings(media)
	return &pkg, nil
}

func (r *PackageRepo) loadTours(ctx context.Context, pkg *model.Package) error {
	where := map[string]interface{}{"package_id": pkg.ID, "_orderby": "order_index asc"}
	fields := []string{"id", "package_id", "title", "number", "order_index", "is_warmup", "editors_json", "preamble"}
	rows, err := r.query(ctx, "tours", where, fields)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Tour
		var warmup int
		var editors string
		if err := rows.Scan(&t.ID, &t.PackageID, &t.Title, &t.Number, &t.OrderIndex, &warmup, &editors, &t.Preamble); err != nil {
			return err
		}
		t.IsWarmup = warmup == 1
		t.Editors = decodeStrings(editors)
		pkg.Tours = append(pkg.Tours, t)
	}
	return rows.Err()
}

func (r *PackageRepo) loadBlocks(ctx context.Context, packageID string) (map[string][]model.Block, error) {
	where := map[string]interface{}{"package_id": packageID, "_orderby": "order_index asc"}
	fields := []string{"id", "tour_id", "title", "order_index", "editors_json", "preamble"}
	rows, err := r.query(ctx, "blocks", where, fields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]model.Block)
	for rows.Next() {
		var b model.Block
		var editors string
		if err := rows.Scan(&b.ID, &b.TourID, &b.Title, &b.OrderIndex, &editors, &b.Preamble); err != nil {
			return nil, err
		}
		b.Editors = decodeStrings(editors)
		out[b.TourID] = append(out[b.TourID], b)
	}
	return out, rows.Err()
}

// loadQuestions groups questions by block id, or by tour id for questions
// that sit directly on a tour.
func (r *PackageRepo) loadQuestions(ctx context.Context, packageID string) (map[string][]model.Question, error) {
	where := map[string]interface{}{"package_id": packageID, "_orderby": "order_index asc"}
	fields := []string{
		"id", "tour_id", "block_id", "number", "order_index", "text", "answer", "accepted", "rejected",
		"comment", "source", "authors_json", "host_instructions", "handout", "media_json",
	}
	rows, err := r.query(ctx, "questions", where, fields)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]model.Question)
	for rows.Next() {
		var q model.Question
		var authors, media string
		if err := rows.Scan(
			&q.ID, &q.TourID, &q.BlockID, &q.Number, &q.OrderIndex, &q.Text, &q.Answer, &q.Accepted, &q.Rejected,
			&q.Comment, &q.Source, &authors, &q.HostInstructions, &q.Handout, &media,
		); err != nil {
			return nil, err
		}
		q.Authors = decodeStrings(authors)
		q.Media = decodeStrings(media)
		parent := q.TourID
		if q.BlockID != "" {
			parent = q.BlockID
		}
		out[parent] = append(out[parent], q)
	}
	return out, rows.Err()
}

func (r *PackageRepo) query(ctx context.Context, table string, where map[string]interface{}, fields []string) (*sql.Rows, error) {
	return dbutil.Select(ctx, r.db, table, where, fields)
}

func (r *PackageRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertChildren(ctx context.Context, tx dbutil.Execer, pkg *model.Package) error {
	var tours, blocks, questions []map[string]interface{}
	for _, t := range pkg.Tours {
		editors, err := encodeStrings(t.Editors)
		if err != nil {
			return err
		}
		tours = append(tours, map[string]interface{}{
			"id":           t.ID,
			"package_id":   pkg.ID,
			"title":        t.Title,
			"number":       t.Number,
			"order_index":  t.OrderIndex,
			"is_warmup":    boolToInt(t.IsWarmup),
			"editors_json": editors,
			"preamble":     t.Preamble,
		})
		for _, b := range t.Blocks {
			editors, err := encodeStrings(b.Editors)
			if err != nil {
				return err
			}
			blocks = append(blocks, map[string]interface{}{
				"id":           b.ID,
				"package_id":   pkg.ID,
				"tour_id":      t.ID,
				"title":        b.Title,
				"order_index":  b.OrderIndex,
				"editors_json": editors,
				"preamble":     b.Preamble,
			})
		}
		var err2 error
		t.EachQuestion(func(q *model.Question) {
			if err2 != nil {
				return
			}
			var row map[string]interface{}
			row, err2 = questionRow(pkg.ID, t.ID, q)
			questions = append(questions, row)
		})
		if err2 != nil {
			return err2
		}
	}
	if err := dbutil.Insert(ctx, tx, "tours", tours); err != nil {
		return fmt.Errorf("insert tours: %w", err)
	}
	if err := dbutil.Insert(ctx, tx, "blocks", blocks); err != nil {
		return fmt.Errorf("insert blocks: %w", err)
	}
	if err := dbutil.Insert(ctx, tx, "questions", questions); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

func packageRow(pkg *model.Package) (map[string]interface{}, error) {
	tags, err := encodeStrings(pkg.Tags)
	if err != nil {
		return nil, err
	}
	editors, err := encodeStrings(pkg.Editors)
	if err != nil {
		return nil, err
	}
	media, err := encodeStrings(pkg.Media)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":             pkg.ID,
		"user_id":        pkg.UserID,
		"title":          pkg.Title,
		"description":    pkg.Description,
		"preamble":       pkg.Preamble,
		"numbering_mode": string(pkg.NumberingMode),
		"tags_json":      tags,
		"editors_json":   editors,
		"media_json":     media,
		"ctime":          pkg.Ctime,
		"mtime":          pkg.Mtime,
	}, nil
}

func questionRow(packageID, tourID string, q *model.Question) (map[string]interface{}, error) {
	authors, err := encodeStrings(q.Authors)
	if err != nil {
		return nil, err
	}
	media, err := encodeStrings(q.Media)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":                q.ID,
		"package_id":        packageID,
		"tour_id":           tourID,
		"block_id":          q.BlockID,
		"number":            q.Number,
		"order_index":       q.OrderIndex,
		"text":              q.Text,
		"answer":            q.Answer,
		"accepted":          q.Accepted,
		"rejected":          q.Rejected,
		"comment":           q.Comment,
		"source":            q.Source,
		"authors_json":      authors,
		"host_instructions": q.HostInstructions,
		"handout":           q.Handout,
		"media_json":        media,
	}, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
