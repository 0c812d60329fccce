package services

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linkdrop/linkdrop/internal/auth"
	"github.com/linkdrop/linkdrop/internal/http_range"
	"github.com/linkdrop/linkdrop/internal/logging"
	"go.uber.org/zap"
)

// DownloadHandler streams the linked file, honoring single forward byte
// ranges. Token possession is the only credential here.
func (a *apiService) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	user := auth.GetPrincipal(r.Context())

	record, f, err := a.ResolveForDownload(r.Context(), tok, clientIP(r), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Accept-Ranges", "bytes")

	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename})

	rangeHeader := r.Header.Get("Range")

	if record.FileSize == 0 {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", "0")
		if rangeHeader != "" {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", record.FileSize))
			http.Error(w, "Requested Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Disposition", disposition)
		w.WriteHeader(http.StatusOK)
		return
	}

	var start, end int64
	status := http.StatusOK

	if rangeHeader == "" {
		start = 0
		end = record.FileSize - 1
	} else {
		ranges, err := http_range.Parse(rangeHeader, record.FileSize)
		if err == http_range.ErrNoOverlap {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", record.FileSize))
			http.Error(w, http_range.ErrNoOverlap.Error(), http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(ranges) > 1 {
			http.Error(w, "multiple ranges are not supported", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		start = ranges[0].Start
		end = ranges[0].End
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, record.FileSize))
		status = http.StatusPartialContent
	}

	contentLength := end - start + 1

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		logging.FromContext(r.Context()).Error("seek failed", zap.Error(err))
		return
	}
	if _, err := io.CopyN(w, f, contentLength); err != nil {
		// client went away or the disk failed mid-stream; headers are out
		logging.FromContext(r.Context()).Debug("stream aborted", zap.Error(err))
	}
}
