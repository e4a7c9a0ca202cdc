package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dlukic/liftlab/internal/telemetry/tracing"
	"github.com/dlukic/liftlab/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	archivePrefix = "liftlab-data-"
	archiveSuffix = ".tar.gz"

	// older archives beyond this count get removed after each backup
	keepArchives = 14
)

// Uploader ships finished archives offsite.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Service archives the processed data directory into timestamped
// tar.gz files and optionally ships them to a remote uploader.
type Service struct {
	dataDir   string
	backupDir string
	uploader  Uploader
	nowFunc   func() time.Time
}

func NewService(dataDir, backupDir string, uploader Uploader) *Service {
	return &Service{
		dataDir:   dataDir,
		backupDir: backupDir,
		uploader:  uploader,
		nowFunc:   time.Now,
	}
}

// Run produces one archive, uploads it when an uploader is configured,
// and prunes old archives. Returns the path of the created archive.
func (s *Service) Run(ctx context.Context) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.run")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if exists, _ := pkg.PathExists(s.dataDir, true); !exists {
		return "", fmt.Errorf("data dir %s does not exist", s.dataDir)
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	var buf bytes.Buffer
	if err := pkg.Compress(s.dataDir, &buf); err != nil {
		return "", fmt.Errorf("compress data dir: %w", err)
	}

	archiveName := archivePrefix + s.nowFunc().Format("20060102-150405") + archiveSuffix
	archivePath := filepath.Join(s.backupDir, archiveName)
	if err := os.WriteFile(archivePath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	log.Debugf("backup archive written: %s (%d bytes)", archivePath, buf.Len())

	if s.uploader != nil {
		if err := s.uploader.Upload(ctx, archiveName, buf.Bytes()); err != nil {
			return "", fmt.Errorf("upload archive: %w", err)
		}
	}

	if err := s.prune(); err != nil {
		log.Errorf("failed to prune old backups: %s", err)
	}

	return archivePath, nil
}

// prune keeps only the newest archives in the backup dir.
func (s *Service) prune() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return err
	}

	var archives []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, archiveSuffix) {
			archives = append(archives, name)
		}
	}
	if len(archives) <= keepArchives {
		return nil
	}

	// names embed the timestamp, lexical order is chronological
	sort.Strings(archives)
	for _, name := range archives[:len(archives)-keepArchives] {
		if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil {
			return err
		}
		log.Debugf("pruned old backup: %s", name)
	}
	return nil
}
