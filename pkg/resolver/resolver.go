package resolver

import (
	"context"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrOutsideRoot = errors.New("path escapes the storage root")
)

// FileInfo is the snapshot of a resolved file used to build a link record.
type FileInfo struct {
	AbsPath     string
	Name        string
	Size        int64
	ContentType string
	IsDir       bool
}

// Resolver maps a logical path to a file in the managed tree. Listing,
// upload and permission logic live elsewhere; this only answers "what file
// is this and what does it look like".
type Resolver interface {
	Resolve(ctx context.Context, logicalPath string) (*FileInfo, error)
}

type localResolver struct {
	root string
}

func NewLocal(root string) (Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &localResolver{root: abs}, nil
}

func (r *localResolver) Resolve(ctx context.Context, logicalPath string) (*FileInfo, error) {
	cleaned := filepath.Clean("/" + logicalPath)
	abs := filepath.Join(r.root, cleaned)
	if abs != r.root && !strings.HasPrefix(abs, r.root+string(filepath.Separator)) {
		return nil, ErrOutsideRoot
	}

	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	info := &FileInfo{
		AbsPath: abs,
		Name:    fi.Name(),
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
	}
	if !fi.IsDir() {
		info.ContentType = detectContentType(abs)
	}
	return info, nil
}

func detectContentType(path string) string {
	if mtype, err := mimetype.DetectFile(path); err == nil {
		return mtype.String()
	}
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
