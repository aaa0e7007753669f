package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyellow/unibot-go/internal/errors"
)

// Store operation names, used for error context and metric labels.
const (
	OpListSpecialties     = "list_specialties"
	OpCountSpecialties    = "count_specialties"
	OpCountUniversities   = "count_universities"
	OpUniversitiesFor     = "universities_for"
	OpReplaceUniversities = "replace_universities"
)

// ListSpecialties returns the distinct specialty names, sorted ascending.
func (db *DB) ListSpecialties(ctx context.Context) (specialties []string, err error) {
	defer db.observe(OpListSpecialties, time.Now(), &err)

	rows, err := db.reader.QueryContext(ctx,
		`SELECT DISTINCT specialty FROM universities ORDER BY specialty`)
	if err != nil {
		return nil, errors.NewStoreError(OpListSpecialties, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.NewStoreError(OpListSpecialties, err)
		}
		specialties = append(specialties, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(OpListSpecialties, err)
	}
	return specialties, nil
}

// CountSpecialties returns the number of distinct specialties.
func (db *DB) CountSpecialties(ctx context.Context) (n int, err error) {
	defer db.observe(OpCountSpecialties, time.Now(), &err)

	if err := db.reader.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT specialty) FROM universities`).Scan(&n); err != nil {
		return 0, errors.NewStoreError(OpCountSpecialties, err)
	}
	return n, nil
}

// CountUniversities returns the total number of records.
func (db *DB) CountUniversities(ctx context.Context) (n int, err error) {
	defer db.observe(OpCountUniversities, time.Now(), &err)

	if err := db.reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM universities`).Scan(&n); err != nil {
		return 0, errors.NewStoreError(OpCountUniversities, err)
	}
	return n, nil
}

// Stats returns both catalogue counts.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	specialties, err := db.CountSpecialties(ctx)
	if err != nil {
		return Stats{}, err
	}
	universities, err := db.CountUniversities(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Specialties: specialties, Universities: universities}, nil
}

// UniversitiesFor returns up to limit universities offering specialty.
// Local-city rows come first; within each tier rows are ordered by
// passing_score descending, and equal scores keep insertion order (rowid).
// A non-positive limit yields an empty result.
func (db *DB) UniversitiesFor(ctx context.Context, specialty string, limit int) (result []University, err error) {
	if limit <= 0 {
		return []University{}, nil
	}
	defer db.observe(OpUniversitiesFor, time.Now(), &err)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT name, city, passing_score, link, specialty
		FROM universities
		WHERE specialty = ?
		ORDER BY
			CASE WHEN city = ? THEN 0 ELSE 1 END,
			passing_score DESC,
			rowid
		LIMIT ?
	`, specialty, db.localCity, limit)
	if err != nil {
		return nil, errors.NewStoreError(OpUniversitiesFor, err)
	}
	defer func() { _ = rows.Close() }()

	result = make([]University, 0, limit)
	for rows.Next() {
		var u University
		var link sql.NullString
		if err := rows.Scan(&u.Name, &u.City, &u.PassingScore, &link, &u.Specialty); err != nil {
			return nil, errors.NewStoreError(OpUniversitiesFor, err)
		}
		u.Link = link.String
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(OpUniversitiesFor, err)
	}
	return result, nil
}

// ReplaceUniversities swaps the whole catalogue in one transaction.
// Rows are inserted in slice order, which fixes the tie-break order of
// UniversitiesFor.
func (db *DB) ReplaceUniversities(ctx context.Context, universities []University) (err error) {
	defer db.observe(OpReplaceUniversities, time.Now(), &err)

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError(OpReplaceUniversities, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM universities`); err != nil {
		return errors.NewStoreError(OpReplaceUniversities, fmt.Errorf("delete existing rows: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO universities (name, city, passing_score, link, specialty)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewStoreError(OpReplaceUniversities, fmt.Errorf("prepare insert statement: %w", err))
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range universities {
		var link sql.NullString
		if u.Link != "" {
			link = sql.NullString{String: u.Link, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, u.Name, u.City, u.PassingScore, link, u.Specialty); err != nil {
			return errors.NewStoreError(OpReplaceUniversities, fmt.Errorf("insert %q: %w", u.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError(OpReplaceUniversities, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Checkpoint folds the WAL into the main database file so the file can be
// copied or published on its own.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.writer.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}
