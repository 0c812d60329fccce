package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/linkdrop/linkdrop/internal/cache"
	"github.com/linkdrop/linkdrop/internal/config"
	"github.com/linkdrop/linkdrop/internal/logging"
	"github.com/linkdrop/linkdrop/pkg/hardlink"
	"github.com/linkdrop/linkdrop/pkg/ratelimit"
	"github.com/linkdrop/linkdrop/pkg/resolver"
	"github.com/linkdrop/linkdrop/pkg/store"
	"github.com/linkdrop/linkdrop/pkg/token"
	"go.uber.org/zap"
)

// ErrorCode values are the stable machine readable error identifiers.
type ErrorCode string

const (
	CodeValidation  = ErrorCode("validation")
	CodeNotFound    = ErrorCode("not_found")
	CodeCrossDevice = ErrorCode("cross_device")
	CodeUnsupported = ErrorCode("link_unsupported")
	CodeLinkFailed  = ErrorCode("link_failed")
	CodeRateLimited = ErrorCode("rate_limited")
	CodeInternal    = ErrorCode("internal")
)

type apiError struct {
	err    error
	code   ErrorCode
	status int
	msg    string
}

func (a *apiError) Error() string {
	return a.err.Error()
}

func (a *apiError) Unwrap() error {
	return a.err
}

func (a *apiError) Status() int {
	if a.status == 0 {
		return http.StatusInternalServerError
	}
	return a.status
}

func (a *apiError) CodeTag() ErrorCode {
	if a.code == "" {
		return CodeInternal
	}
	return a.code
}

// Message is the caller visible text. Wrapped errors can embed physical
// paths, so only an explicitly chosen message or the per-code default is
// ever surfaced; the wrapped detail stays in the server log.
func (a *apiError) Message() string {
	if a.msg != "" {
		return a.msg
	}
	switch a.CodeTag() {
	case CodeValidation:
		return "invalid request"
	case CodeNotFound:
		return "download link not found"
	case CodeCrossDevice:
		return "file and link directory are on different filesystems"
	case CodeUnsupported:
		return "hard links are not supported by the underlying filesystem"
	case CodeLinkFailed:
		return "failed to create download link"
	case CodeRateLimited:
		return "too many requests"
	}
	return "an internal error occurred"
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// writeError maps any error to its transport shape. The underlying error
// is only logged; the JSON body carries the safe per-code message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	var ae *apiError
	if !errors.As(err, &ae) {
		ae = &apiError{err: err, code: CodeInternal, status: http.StatusInternalServerError}
	}
	if ae.Status() >= 500 {
		logger.Error("request failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status())
	json.NewEncoder(w).Encode(errorBody{Code: ae.CodeTag(), Message: ae.Message()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type apiService struct {
	cnf      *config.ServerCmdConfig
	store    store.LinkStore
	resolver resolver.Resolver
	links    *hardlink.Manager
	tokens   *token.Generator
	limiter  ratelimit.Limiter
	cacher   cache.Cacher

	now func() time.Time
}

func NewApiService(cnf *config.ServerCmdConfig,
	linkStore store.LinkStore,
	fileResolver resolver.Resolver,
	links *hardlink.Manager,
	limiter ratelimit.Limiter,
	cacher cache.Cacher) *apiService {
	return &apiService{
		cnf:      cnf,
		store:    linkStore,
		resolver: fileResolver,
		links:    links,
		tokens:   token.NewGenerator(cnf.Link.TokenSize),
		limiter:  limiter,
		cacher:   cacher,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}
