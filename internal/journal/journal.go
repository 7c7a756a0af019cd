// Package journal keeps a local record of multipart uploads in sqlite so
// sessions left open on the service can be found and cleaned up later.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/guregu/null/v6"
	_ "modernc.org/sqlite"

	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/pkg/sdk"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrUploadNotFound = model.NewError("upload.not_found", "Upload %s not found")

// Upload is one journaled multipart upload.
type Upload struct {
	UploadID    string      `json:"upload_id"`
	Namespace   string      `json:"namespace"`
	Bucket      string      `json:"bucket"`
	Object      string      `json:"object"`
	State       string      `json:"state"`
	Parts       int         `json:"parts"`
	Size        int64       `json:"size"`
	Hash        null.String `json:"hash"`
	ETag        null.String `json:"etag"`
	Error       null.String `json:"error"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CommittedAt null.Time   `json:"committed_at"`
}

type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal database at path and brings
// its schema up to date.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	j, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// New runs the migrations on db and returns a journal using it.
func New(db *sql.DB) (*Journal, error) {
	if err := migrateUp(db); err != nil {
		return nil, err
	}
	return &Journal{db: db, logger: slog.Default().With(slog.String("component", "journal"))}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// The observer hooks must not fail the upload they observe, so write errors
// are logged and dropped. Writes outlive the caller's context.

func (j *Journal) UploadOpened(ctx context.Context, session sdk.UploadSession) {
	now := time.Now().UnixMilli()
	_, err := j.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO uploads (upload_id, namespace, bucket, object, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.UploadID, session.NamespaceName, session.BucketName, session.ObjectName,
		session.State.String(), now, now,
	)
	j.logFailure("record upload", session.UploadID, err)
}

func (j *Journal) PartUploaded(ctx context.Context, session sdk.UploadSession, _ sdk.PartRecord, size int) {
	_, err := j.db.ExecContext(context.WithoutCancel(ctx), `
		UPDATE uploads SET state = ?, parts = ?, size = size + ?, updated_at = ?
		WHERE upload_id = ?`,
		session.State.String(), len(session.Parts), size, time.Now().UnixMilli(), session.UploadID,
	)
	j.logFailure("record part", session.UploadID, err)
}

func (j *Journal) UploadCommitted(ctx context.Context, session sdk.UploadSession, result *sdk.PutObjectResult) {
	now := time.Now().UnixMilli()
	_, err := j.db.ExecContext(context.WithoutCancel(ctx), `
		UPDATE uploads SET state = ?, parts = ?, size = ?, hash = ?, etag = ?, updated_at = ?, committed_at = ?
		WHERE upload_id = ?`,
		session.State.String(), len(result.Parts), result.Size, result.Hash, null.NewString(result.ETag, result.ETag != ""),
		now, now, session.UploadID,
	)
	j.logFailure("record commit", session.UploadID, err)
}

func (j *Journal) UploadFailed(ctx context.Context, session sdk.UploadSession, cause error) {
	state := session.State.String()
	var perr *sdk.PartialUploadError
	if errors.As(cause, &perr) && perr.Aborted {
		state = "aborted"
	}
	_, err := j.db.ExecContext(context.WithoutCancel(ctx), `
		UPDATE uploads SET state = ?, parts = ?, error = ?, updated_at = ?
		WHERE upload_id = ?`,
		state, len(session.Parts), cause.Error(), time.Now().UnixMilli(), session.UploadID,
	)
	j.logFailure("record failure", session.UploadID, err)
}

func (j *Journal) logFailure(action, uploadID string, err error) {
	if err != nil {
		j.logger.Error("failed to "+action, slog.String("upload_id", uploadID), slog.String("error", err.Error()))
	}
}

// Get returns the journal entry of an upload.
func (j *Journal) Get(ctx context.Context, uploadID string) (Upload, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE upload_id = ?`, uploadID)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Upload{}, ErrUploadNotFound.Fmt(uploadID)
	}
	if err != nil {
		return Upload{}, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

type ListParams struct {
	model.PaginationParams
	// State keeps only uploads in this state.
	State null.String `validate:"omitnil,oneof=session_open part_uploading done failed aborted"`
}

// List returns uploads, newest first.
func (j *Journal) List(ctx context.Context, params ListParams) (model.PaginateResult[Upload], error) {
	where, args := "", []any{}
	if params.State.Valid {
		where = " WHERE state = ?"
		args = append(args, params.State.String)
	}

	var (
		total   int64
		uploads = []Upload{}
	)
	// Count and page in one transaction so Total matches Data.
	err := j.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count uploads: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+uploadColumns+` FROM uploads`+where+` ORDER BY created_at DESC, upload_id LIMIT ? OFFSET ?`,
			append(args, params.GetLimit(), params.Offset())...,
		)
		if err != nil {
			return fmt.Errorf("list uploads: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUpload(rows)
			if err != nil {
				return fmt.Errorf("scan upload: %w", err)
			}
			uploads = append(uploads, u)
		}
		return rows.Err()
	})
	if err != nil {
		return model.PaginateResult[Upload]{}, err
	}

	return model.PaginateResult[Upload]{
		PageParams: params.PaginationParams,
		Data:       uploads,
		Total:      null.IntFrom(total),
	}, nil
}

const uploadColumns = `upload_id, namespace, bucket, object, state, parts, size, hash, etag, error, created_at, updated_at, committed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (Upload, error) {
	var (
		u                    Upload
		createdAt, updatedAt int64
		committedAt          null.Int64
	)
	if err := s.Scan(&u.UploadID, &u.Namespace, &u.Bucket, &u.Object, &u.State, &u.Parts, &u.Size,
		&u.Hash, &u.ETag, &u.Error, &createdAt, &updatedAt, &committedAt); err != nil {
		return Upload{}, err
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	u.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if committedAt.Valid {
		u.CommittedAt = null.TimeFrom(time.UnixMilli(committedAt.Int64).UTC())
	}
	return u, nil
}
