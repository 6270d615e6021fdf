package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"

	"github.com/wrenfield/starling/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string // empty disables encryption
	ScheduleHour  int    // UTC hour the daily backup runs
	RetentionDays int
}

// Manager snapshots the database and uploads it to S3-compatible storage
// on a daily schedule, pruning uploads past the retention window.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	logger *slog.Logger

	lastRun string // date of last scheduled run

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. With incomplete S3 credentials the
// manager is disabled: Start is a no-op and RunNow returns an error.
func NewManager(cfg Config, db *sql.DB, backupStore *store.BackupStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{
		cfg:    cfg,
		db:     db,
		store:  backupStore,
		logger: logger.With("component", "backup"),
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the manager has usable S3 credentials.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	if m.client == nil {
		return
	}
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	now := time.Now().UTC()
	if now.Hour() != m.cfg.ScheduleHour {
		return
	}

	day := now.Format("2006-01-02")
	m.mu.Lock()
	if m.lastRun == day {
		m.mu.Unlock()
		return
	}
	m.lastRun = day
	m.mu.Unlock()

	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.prune(ctx); err != nil {
		m.logger.Error("prune failed", "error", err)
	}
}

// RunNow snapshots the database and uploads it, returning the backup id.
func (m *Manager) RunNow(ctx context.Context) (int64, error) {
	if m.client == nil {
		return 0, fmt.Errorf("backup not configured: S3 credentials missing")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	objectKey := fmt.Sprintf("starling/backup-%s.db", timestamp)
	if m.cfg.Passphrase != "" {
		objectKey += ".enc"
	}

	id, err := m.store.Start(objectKey)
	if err != nil {
		return 0, fmt.Errorf("record backup: %w", err)
	}

	size, err := m.snapshotAndUpload(ctx, objectKey)
	if err != nil {
		if ferr := m.store.Fail(id, err.Error()); ferr != nil {
			m.logger.Error("mark backup failed", "error", ferr)
		}
		return 0, err
	}

	if err := m.store.Finish(id, size); err != nil {
		return 0, fmt.Errorf("finish backup: %w", err)
	}
	m.logger.Info("backup complete", "object_key", objectKey, "size_bytes", size)
	return id, nil
}

func (m *Manager) snapshotAndUpload(ctx context.Context, objectKey string) (int64, error) {
	tmpDir, err := os.MkdirTemp("", "starling-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// VACUUM INTO produces a consistent snapshot without blocking writers.
	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}

	uploadPath := snapshot
	if m.cfg.Passphrase != "" {
		encrypted := snapshot + ".enc"
		if err := EncryptFile(snapshot, encrypted, m.cfg.Passphrase); err != nil {
			return 0, err
		}
		uploadPath = encrypted
	}

	size, err := m.upload(ctx, uploadPath, objectKey)
	if err != nil {
		return 0, err
	}
	return size, nil
}

// upload puts the file to S3, retrying transient failures with backoff.
func (m *Manager) upload(ctx context.Context, path, objectKey string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.S3.Bucket),
			Key:           aws.String(objectKey),
			Body:          f,
			ContentLength: aws.Int64(stat.Size()),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return stat.Size(), nil
}

// prune deletes backups past the retention window, locally and in S3.
func (m *Manager) prune(ctx context.Context) error {
	before := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.store.DeleteOlderThan(before)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Error("delete object", "key", key, "error", err)
		}
	}
	return nil
}
