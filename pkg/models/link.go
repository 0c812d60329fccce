package models

import (
	"errors"
	"time"
)

var ErrBadExpiry = errors.New("expiry must be after creation time")

// Link maps a download token to the hard link it serves. Rows are immutable
// after insert; expiry is derived from ExpiresAt at query time.
type Link struct {
	Token        string    `gorm:"type:text;primaryKey"`
	OriginalPath string    `gorm:"type:text;not null"`
	LinkPath     string    `gorm:"type:text;not null;uniqueIndex"`
	Filename     string    `gorm:"type:text;not null"`
	ContentType  string    `gorm:"type:text;not null"`
	FileSize     int64     `gorm:"type:bigint;not null"`
	CreatedAt    time.Time `gorm:"type:timestamp;not null"`
	ExpiresAt    time.Time `gorm:"type:timestamp;not null;index"`
	CreatedBy    string    `gorm:"type:text;index"`
}

func NewLink(token, originalPath, linkPath, filename, contentType string,
	fileSize int64, createdAt, expiresAt time.Time, createdBy string) (*Link, error) {
	if !expiresAt.After(createdAt) {
		return nil, ErrBadExpiry
	}
	return &Link{
		Token:        token,
		OriginalPath: originalPath,
		LinkPath:     linkPath,
		Filename:     filename,
		ContentType:  contentType,
		FileSize:     fileSize,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		CreatedBy:    createdBy,
	}, nil
}

func (l *Link) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
