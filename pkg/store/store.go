package store

import (
	"context"
	"errors"
	"time"

	"github.com/linkdrop/linkdrop/internal/database"
	"github.com/linkdrop/linkdrop/pkg/models"
	"gorm.io/gorm"
)

// LinkStore is the persistence contract for link records. Records are
// inserted once and never updated; "active" is always computed against a
// caller supplied clock, no flag is stored.
type LinkStore interface {
	Insert(ctx context.Context, link *models.Link) error
	FindByToken(ctx context.Context, token string) (*models.Link, error)
	FindExpired(ctx context.Context, now time.Time) ([]models.Link, error)
	FindActiveByUser(ctx context.Context, user string, now time.Time) ([]models.Link, error)
	Delete(ctx context.Context, token string) error
	CountActive(ctx context.Context, now time.Time) (int64, error)
	CountActiveByUser(ctx context.Context, user string, now time.Time) (int64, error)
	AllLinkPaths(ctx context.Context) ([]string, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) LinkStore {
	return &gormStore{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Link{})
}

func (s *gormStore) Insert(ctx context.Context, link *models.Link) error {
	err := s.db.WithContext(ctx).Create(link).Error
	if database.IsKeyConflictErr(err) {
		return database.ErrKeyConflict
	}
	return err
}

func (s *gormStore) FindByToken(ctx context.Context, token string) (*models.Link, error) {
	var link models.Link
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (s *gormStore) FindExpired(ctx context.Context, now time.Time) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).Where("expires_at <= ?", now).Find(&links).Error
	return links, err
}

func (s *gormStore) FindActiveByUser(ctx context.Context, user string, now time.Time) ([]models.Link, error) {
	var links []models.Link
	err := s.db.WithContext(ctx).
		Where("created_by = ?", user).
		Where("expires_at > ?", now).
		Order("created_at desc").
		Find(&links).Error
	return links, err
}

func (s *gormStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Link{}).Error
}

func (s *gormStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("expires_at > ?", now).
		Count(&count).Error
	return count, err
}

func (s *gormStore) CountActiveByUser(ctx context.Context, user string, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("created_by = ?", user).
		Where("expires_at > ?", now).
		Count(&count).Error
	return count, err
}

func (s *gormStore) AllLinkPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.db.WithContext(ctx).Model(&models.Link{}).
		Pluck("link_path", &paths).Error
	return paths, err
}
