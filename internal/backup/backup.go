// Package backup uploads encrypted copies of the local state file to
// S3-compatible storage and restores them.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/tasksparkle/internal/config"
	"github.com/dukerupert/tasksparkle/internal/model"
	"github.com/dukerupert/tasksparkle/internal/seal"
	"github.com/dukerupert/tasksparkle/internal/store"
)

// ErrDisabled is returned when no bucket or credentials are configured.
var ErrDisabled = errors.New("backup not configured: S3 bucket and credentials required")

// objectPrefix namespaces uploads inside the bucket.
const objectPrefix = "tasksparkle/"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Manager pushes and restores backups of one state database.
type Manager struct {
	s3     config.S3
	dbPath string
	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	logger *slog.Logger
}

// NewManager creates a manager for the database at dbPath. Without a
// complete S3 configuration the manager is disabled and every remote
// operation returns ErrDisabled.
func NewManager(cfg config.S3, dbPath string, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{s3: cfg, dbPath: dbPath, db: db, store: bs, logger: logger}
	if cfg.Complete() {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg config.S3) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Push checkpoints and copies the database, encrypts the copy with a key
// derived from passphrase and uploads it. The returned record reflects the
// final status.
func (m *Manager) Push(ctx context.Context, passphrase string) (*model.Backup, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	if passphrase == "" {
		return nil, fmt.Errorf("backup passphrase required")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	filename := fmt.Sprintf("backup-%s.db.enc", timestamp)
	key := objectPrefix + filename

	record, err := m.store.Create(filename, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	log := m.logger.With("backup_id", record.ID, "key", key)

	size, err := m.upload(ctx, record.ID, key, passphrase)
	if err != nil {
		log.Error("backup failed", "error", err)
		if uerr := m.store.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			log.Warn("failed to record backup failure", "error", uerr)
		}
		return nil, err
	}

	if err := m.store.UpdateCompleted(record.ID, size); err != nil {
		return nil, err
	}
	log.Info("backup uploaded", "size_bytes", size)
	return m.store.GetByID(record.ID)
}

func (m *Manager) upload(ctx context.Context, id int64, key, passphrase string) (int64, error) {
	if err := m.store.UpdateStatus(id, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}

	tmpDir := os.TempDir()
	dbCopy := filepath.Join(tmpDir, fmt.Sprintf("tasksparkle-backup-%d.db", id))
	encFile := filepath.Join(tmpDir, fmt.Sprintf("tasksparkle-backup-%d.db.enc", id))
	defer os.Remove(dbCopy)
	defer os.Remove(encFile)

	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return 0, fmt.Errorf("wal checkpoint: %w", err)
	}
	if err := copyFile(m.dbPath, dbCopy); err != nil {
		return 0, fmt.Errorf("copy database: %w", err)
	}
	if err := seal.EncryptFile(dbCopy, encFile, passphrase); err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	f, err := os.Open(encFile)
	if err != nil {
		return 0, fmt.Errorf("open encrypted file: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat encrypted file: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.s3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return stat.Size(), nil
}

// List returns recorded backups, newest first.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.store.List(limit)
}

// Restore downloads a backup, decrypts it, checks its integrity and
// replaces the state file. It closes the manager's database handle before
// the file is replaced; the process should exit afterwards.
func (m *Manager) Restore(ctx context.Context, backupID int64, passphrase string) error {
	if m.client == nil {
		return ErrDisabled
	}

	record, err := m.store.GetByID(backupID)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil {
		return fmt.Errorf("backup %d not found", backupID)
	}

	tmpDir := os.TempDir()
	encFile := filepath.Join(tmpDir, fmt.Sprintf("tasksparkle-restore-%d.db.enc", backupID))
	decFile := filepath.Join(tmpDir, fmt.Sprintf("tasksparkle-restore-%d.db", backupID))
	defer os.Remove(encFile)
	defer os.Remove(decFile)

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.s3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	out, err := os.Create(encFile)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		return fmt.Errorf("write downloaded file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write downloaded file: %w", err)
	}

	if err := seal.DecryptFile(encFile, decFile, passphrase); err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}
	if err := checkIntegrity(decFile); err != nil {
		return err
	}

	// A later close would checkpoint stale WAL pages over the restored file.
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	if err := copyFile(decFile, m.dbPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(m.dbPath + "-wal")
	os.Remove(m.dbPath + "-shm")

	m.logger.Info("backup restored", "backup_id", backupID, "path", m.dbPath)
	return nil
}

// Cleanup deletes backups older than retentionDays, both the records and
// the uploaded objects. Object deletion failures are logged.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if m.client == nil {
		return 0, ErrDisabled
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}

	before := time.Now().UTC().AddDate(0, 0, -retentionDays)
	keys, err := m.store.DeleteOlderThan(before)
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.s3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("failed to delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
