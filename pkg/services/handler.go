package services

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/linkdrop/linkdrop/internal/auth"
	"github.com/linkdrop/linkdrop/pkg/schemas"
)

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}()

func (a *apiService) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	var body schemas.LinkIn
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: CodeValidation, Message: "malformed request body"})
		return
	}
	if err := validate.Struct(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: CodeValidation, Message: "filePath is required"})
		return
	}

	user := auth.GetPrincipal(r.Context())
	out, err := a.CreateLink(r.Context(), user, body.FilePath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiService) LinkStatusHandler(w http.ResponseWriter, r *http.Request) {
	out, err := a.LinkStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiService) ListLinksHandler(w http.ResponseWriter, r *http.Request) {
	out, err := a.ActiveLinks(r.Context(), auth.GetPrincipal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
