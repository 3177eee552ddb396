package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslink/portal/internal/common/config"
	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/messages"
)

// Storage writes uploaded files to local disk and hands back attachment
// descriptors. Message rows only ever carry these references, never bytes.
type Storage struct {
	dir     string
	baseURL string
	maxSize int64
	logger  *zap.Logger
}

func New(cfg config.StorageConfig, logger *zap.Logger) (*Storage, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &Storage{
		dir:     cfg.Path,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		maxSize: cfg.MaxUploadSize,
		logger:  logger,
	}, nil
}

// Dir is the directory the HTTP layer serves as static files.
func (s *Storage) Dir() string {
	return s.dir
}

// Save streams the upload to disk under a generated name, keeping only the
// original extension. The declared size is advisory; the copy is capped at
// the configured limit regardless.
func (s *Storage) Save(ctx context.Context, originalName string, declaredSize int64, r io.Reader) (*messages.Attachment, error) {
	if s.maxSize > 0 && declaredSize > s.maxSize {
		return nil, apperrors.BadRequest("file exceeds the upload size limit")
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.New().String() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 1 << 30
	}

	written, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if written > limit {
		os.Remove(path)
		return nil, apperrors.BadRequest("file exceeds the upload size limit")
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	att := &messages.Attachment{
		Filename: filepath.Base(originalName),
		Mime:     mimeType,
		Size:     written,
		URL:      s.baseURL + "/" + name,
	}
	if strings.HasPrefix(mimeType, "image/") {
		att.ThumbnailURL = att.URL
	}

	s.logger.Debug("file stored",
		zap.String("name", name),
		zap.String("mime", mimeType),
		zap.Int64("size", written),
	)

	return att, nil
}

// Remove deletes a stored file by its generated name.
func (s *Storage) Remove(name string) error {
	clean := filepath.Base(name)
	return os.Remove(filepath.Join(s.dir, clean))
}
