package services

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linkdrop/linkdrop/internal/cache"
	"github.com/linkdrop/linkdrop/internal/database"
	"github.com/linkdrop/linkdrop/internal/logging"
	"github.com/linkdrop/linkdrop/pkg/hardlink"
	"github.com/linkdrop/linkdrop/pkg/models"
	"github.com/linkdrop/linkdrop/pkg/ratelimit"
	"github.com/linkdrop/linkdrop/pkg/resolver"
	"github.com/linkdrop/linkdrop/pkg/schemas"
	"go.uber.org/zap"
)

var (
	ErrLinkNotFound = errors.New("download link not found")
	ErrFileGone     = errors.New("file no longer available")
	ErrIsDirectory  = errors.New("directories cannot be shared")
	ErrTooManyLinks = errors.New("active link limit reached")
	ErrRateLimited  = errors.New("too many requests")
)

const statusActive = "active"

func (a *apiService) toOut(link *models.Link) *schemas.LinkOut {
	base := strings.TrimSuffix(a.cnf.Server.BaseURL, "/")
	return &schemas.LinkOut{
		Token:       link.Token,
		DownloadURL: base + "/downloads/" + link.Token,
		Filename:    link.Filename,
		FileSize:    link.FileSize,
		ContentType: link.ContentType,
		Status:      statusActive,
		CreatedAt:   link.CreatedAt,
		CreatedBy:   link.CreatedBy,
		ExpiresAt:   link.ExpiresAt,
	}
}

// CreateLink issues a new download token for the file at filePath. The hard
// link and the record are created as a pair; on a partial failure the link
// is removed best-effort before the error is surfaced.
func (a *apiService) CreateLink(ctx context.Context, user, filePath string) (*schemas.LinkOut, error) {
	info, err := a.resolver.Resolve(ctx, filePath)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrNotFound):
			return nil, &apiError{err: err, code: CodeNotFound, status: http.StatusNotFound, msg: "file not found"}
		case errors.Is(err, resolver.ErrOutsideRoot):
			return nil, &apiError{err: err, code: CodeValidation, status: http.StatusBadRequest, msg: "path is outside the storage root"}
		}
		return nil, &apiError{err: err, code: CodeInternal}
	}
	if info.IsDir {
		return nil, &apiError{err: ErrIsDirectory, code: CodeValidation, status: http.StatusBadRequest, msg: ErrIsDirectory.Error()}
	}

	now := a.now()

	// Coarse admission check. Concurrent creators may transiently exceed
	// the cap; that is accepted rather than serializing all creations.
	active, err := a.store.CountActive(ctx, now)
	if err != nil {
		return nil, &apiError{err: err, code: CodeInternal}
	}
	if a.cnf.Link.MaxActive > 0 && active >= a.cnf.Link.MaxActive {
		return nil, &apiError{err: ErrTooManyLinks, code: CodeValidation, status: http.StatusBadRequest, msg: ErrTooManyLinks.Error()}
	}

	tok, err := a.tokens.Generate()
	if err != nil {
		return nil, &apiError{err: err, code: CodeInternal}
	}
	linkPath := filepath.Join(a.cnf.Link.TempDir, tok)

	if err := a.links.CreateLink(info.AbsPath, linkPath); err != nil {
		switch {
		case errors.Is(err, hardlink.ErrCrossDevice):
			return nil, &apiError{err: err, code: CodeCrossDevice, status: http.StatusBadRequest}
		case errors.Is(err, hardlink.ErrUnsupported):
			return nil, &apiError{err: err, code: CodeUnsupported, status: http.StatusInternalServerError}
		case errors.Is(err, hardlink.ErrInvalidSource):
			return nil, &apiError{err: err, code: CodeValidation, status: http.StatusBadRequest, msg: hardlink.ErrInvalidSource.Error()}
		}
		return nil, &apiError{err: err, code: CodeLinkFailed, status: http.StatusInternalServerError}
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	record, err := models.NewLink(tok, info.AbsPath, linkPath, info.Name, contentType,
		info.Size, now, now.Add(a.cnf.Link.TTL), user)
	if err != nil {
		a.compensate(ctx, linkPath, "")
		return nil, &apiError{err: err, code: CodeInternal}
	}

	if err := a.store.Insert(ctx, record); err != nil {
		a.compensate(ctx, linkPath, tok)
		return nil, &apiError{err: err, code: CodeInternal}
	}

	return a.toOut(record), nil
}

// compensate undoes the filesystem half of a failed creation. Its own
// failures are logged only; the original error is what the caller sees.
func (a *apiService) compensate(ctx context.Context, linkPath, token string) {
	logger := logging.FromContext(ctx)
	if err := a.links.DeleteLink(linkPath); err != nil {
		logger.Warn("failed to clean up partial link", zap.Error(err))
	}
	if token != "" {
		if err := a.store.Delete(ctx, token); err != nil {
			logger.Warn("failed to clean up partial record", zap.Error(err))
		}
	}
}

// findActiveLink resolves a token to a non-expired record. Malformed tokens
// and expired records both collapse to not-found so callers cannot probe
// whether a token ever existed.
func (a *apiService) findActiveLink(ctx context.Context, tok string) (*models.Link, error) {
	if !a.tokens.IsWellFormed(tok) {
		return nil, &apiError{err: ErrLinkNotFound, code: CodeNotFound, status: http.StatusNotFound}
	}

	record, err := cache.Fetch(a.cacher, cache.KeyLink(tok), time.Minute, func() (models.Link, error) {
		found, err := a.store.FindByToken(ctx, tok)
		if err != nil {
			return models.Link{}, err
		}
		return *found, nil
	})
	if err != nil {
		// only a genuinely absent record answers not-found; a store or
		// cache backend failure is an internal error, not a 404
		if errors.Is(err, database.ErrNotFound) {
			return nil, &apiError{err: ErrLinkNotFound, code: CodeNotFound, status: http.StatusNotFound}
		}
		return nil, &apiError{err: err, code: CodeInternal}
	}
	if record.IsExpired(a.now()) {
		return nil, &apiError{err: ErrLinkNotFound, code: CodeNotFound, status: http.StatusNotFound}
	}
	return &record, nil
}

func (a *apiService) LinkStatus(ctx context.Context, tok string) (*schemas.LinkOut, error) {
	record, err := a.findActiveLink(ctx, tok)
	if err != nil {
		return nil, err
	}
	return a.toOut(record), nil
}

// ResolveForDownload validates a token and opens the linked file. The
// returned handle stays valid for the whole transfer even if cleanup
// removes the link mid-download.
func (a *apiService) ResolveForDownload(ctx context.Context, tok, clientIP, user string) (*models.Link, *os.File, error) {
	scope := user
	if scope == "" {
		scope = clientIP
	}
	gates := []string{ratelimit.KeyValidation(scope)}
	if clientIP != "" {
		gates = append(gates, ratelimit.KeyIP(clientIP))
	}
	if user != "" {
		gates = append(gates, ratelimit.KeyUser(user))
	}
	for _, key := range gates {
		if !a.limiter.Allow(key) {
			return nil, nil, &apiError{err: ErrRateLimited, code: CodeRateLimited, status: http.StatusTooManyRequests}
		}
	}

	record, err := a.findActiveLink(ctx, tok)
	if err != nil {
		return nil, nil, err
	}

	// The record can outlive the link on disk; both axes are independent.
	if _, err := os.Stat(record.LinkPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &apiError{err: ErrFileGone, code: CodeNotFound, status: http.StatusNotFound}
		}
		return nil, nil, &apiError{err: err, code: CodeInternal}
	}

	f, err := os.Open(record.LinkPath)
	if err != nil {
		return nil, nil, &apiError{err: err, code: CodeInternal}
	}
	return record, f, nil
}

// CleanupExpired removes expired records and their links. Individual
// failures are logged and skipped; the batch always runs to the end.
func (a *apiService) CleanupExpired(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)
	now := a.now()

	expired, err := a.store.FindExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range expired {
		record := &expired[i]
		if err := a.links.DeleteLink(record.LinkPath); err != nil {
			logger.Warn("failed to delete expired link",
				zap.String("token", record.Token), zap.Error(err))
			continue
		}
		if err := a.store.Delete(ctx, record.Token); err != nil {
			logger.Warn("failed to delete expired record",
				zap.String("token", record.Token), zap.Error(err))
			continue
		}
		a.cacher.Delete(cache.KeyLink(record.Token))
		cleaned++
	}
	return cleaned, nil
}

// SweepOrphans deletes temp directory entries that no record points at.
// Run at startup to reconcile links left behind by a crash.
func (a *apiService) SweepOrphans(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	known, err := a.store.AllLinkPaths(ctx)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(known))
	for _, p := range known {
		keep[p] = struct{}{}
	}

	entries, err := os.ReadDir(a.cnf.Link.TempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(a.cnf.Link.TempDir, entry.Name())
		if _, ok := keep[path]; ok {
			continue
		}
		if err := a.links.DeleteLink(path); err != nil {
			logger.Warn("failed to remove orphaned link", zap.Error(err))
			continue
		}
		logger.Info("removed orphaned link", zap.String("name", entry.Name()))
	}
	return nil
}

func (a *apiService) ActiveLinks(ctx context.Context, user string) (*schemas.LinkList, error) {
	records, err := a.store.FindActiveByUser(ctx, user, a.now())
	if err != nil {
		return nil, &apiError{err: err, code: CodeInternal}
	}
	items := make([]schemas.LinkOut, 0, len(records))
	for i := range records {
		items = append(items, *a.toOut(&records[i]))
	}
	return &schemas.LinkList{Items: items, Count: len(items)}, nil
}

func (a *apiService) ActiveCount(ctx context.Context) (int64, error) {
	return a.store.CountActive(ctx, a.now())
}

func (a *apiService) ActiveCountByUser(ctx context.Context, user string) (int64, error) {
	return a.store.CountActiveByUser(ctx, user, a.now())
}
