package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gistlick-api/src/gist"
	"gistlick-api/src/license"
	"gistlick-api/src/mail"

	"github.com/gorilla/mux"
)

// DefaultExpiredDays is the license lifetime applied when a create request
// omits expired_days.
const DefaultExpiredDays = 30

func handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(http.StatusOK, MessageRes{Message: "Welcome to the Gist License API!"}, w)
}

// GistCreateReq is the body of POST /gists.
type GistCreateReq struct {
	Name        string `json:"name"`
	Public      bool   `json:"public"`
	Description string `json:"description"`
}

// GistUpdateReq is the body of PUT /gists/{id}. All fields are optional;
// content may be a JSON string, array, or object and overwrites the gist's
// first file.
type GistUpdateReq struct {
	Name        *string          `json:"name"`
	Public      *bool            `json:"public"`
	Description *string          `json:"description"`
	Content     *json.RawMessage `json:"content"`
}

// LicenseCreateReq is the body of POST /gists/{id}/licenses. Email is
// optional; when set and mail is configured the generated key is delivered to
// that address.
type LicenseCreateReq struct {
	User        string `json:"user"`
	Plan        string `json:"plan"`
	Machine     string `json:"machine"`
	ExpiredDays int    `json:"expired_days"`
	Email       string `json:"email,omitempty"`
}

func (s *Serve) handleGetMe(w http.ResponseWriter, req *http.Request) {
	writeJSON(http.StatusOK, userFromRequest(req), w)
}

func (s *Serve) handleListGists(w http.ResponseWriter, req *http.Request) {
	gists, err := clientFromRequest(req).List(req.Context())
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, gists, w)
}

func (s *Serve) handleGetGist(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	g, err := clientFromRequest(req).Get(req.Context(), gistID)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, g, w)
}

func (s *Serve) handleCreateGist(w http.ResponseWriter, req *http.Request) {
	var payload GistCreateReq
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(http.StatusBadRequest, "JSON body missing or malformed", w)
		return
	}

	if payload.Name == "" {
		writeError(http.StatusBadRequest, "name cannot be empty", w)
		return
	}

	// New gists are seeded with an empty license array so license routes
	// work on them immediately.
	g, err := clientFromRequest(req).Create(req.Context(), payload.Name, payload.Public, payload.Description, "[]")
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusCreated, g, w)
}

func (s *Serve) handleUpdateGist(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	var payload GistUpdateReq
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(http.StatusBadRequest, "JSON body missing or malformed", w)
		return
	}

	params := gist.UpdateParams{
		Name:        payload.Name,
		Public:      payload.Public,
		Description: payload.Description,
	}
	if payload.Content != nil {
		content := rawToString(*payload.Content)
		params.Content = &content
	}

	g, err := clientFromRequest(req).Update(req.Context(), gistID, params)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, g, w)
}

func (s *Serve) handleDeleteGist(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	if err := clientFromRequest(req).Delete(req.Context(), gistID); err != nil {
		writeAPIError(err, w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Serve) handleListLicenses(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	registry := license.NewRegistry(clientFromRequest(req))

	records, err := registry.List(req.Context(), gistID)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, records, w)
}

func (s *Serve) handleCreateLicense(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	var payload LicenseCreateReq
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(http.StatusBadRequest, "JSON body missing or malformed", w)
		return
	}

	if payload.User == "" || payload.Plan == "" || payload.Machine == "" {
		writeError(http.StatusBadRequest, "user, plan and machine cannot be empty", w)
		return
	}
	if payload.ExpiredDays == 0 {
		payload.ExpiredDays = DefaultExpiredDays
	}

	registry := license.NewRegistry(clientFromRequest(req))

	record, err := registry.Create(req.Context(), gistID, payload.User, payload.Plan, payload.Machine, payload.ExpiredDays)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	if payload.Email != "" && s.mail.Enabled() {
		if err := mail.SendLicenseMail(s.mail, payload.Email, record.License.License); err != nil {
			logger.Warn().Msgf("error sending license email: %v", err)
		}
	}

	writeJSON(http.StatusCreated, record, w)
}

func (s *Serve) handleUpdateLicense(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	gistID := vars["id"]
	licenseKey := vars["key"]

	var fields license.UpdateFields
	if err := json.NewDecoder(req.Body).Decode(&fields); err != nil {
		writeError(http.StatusBadRequest, "JSON body missing or malformed", w)
		return
	}

	registry := license.NewRegistry(clientFromRequest(req))

	record, err := registry.Update(req.Context(), gistID, licenseKey, fields)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, record, w)
}

func (s *Serve) handleDeleteLicense(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	gistID := vars["id"]
	licenseKey := vars["key"]

	registry := license.NewRegistry(clientFromRequest(req))

	if err := registry.Delete(req.Context(), gistID, licenseKey); err != nil {
		writeAPIError(err, w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Serve) handleDeleteExpiredLicenses(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]

	registry := license.NewRegistry(clientFromRequest(req))

	deleted, message, err := registry.DeleteExpired(req.Context(), gistID)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	writeJSON(http.StatusOK, DeletedCountRes{Message: message, DeletedCount: deleted}, w)
}

func (s *Serve) handleRawData(w http.ResponseWriter, req *http.Request) {
	gistID := mux.Vars(req)["id"]
	fileName := req.URL.Query().Get("file_name")

	content, err := clientFromRequest(req).Content(req.Context(), gistID, fileName)
	if err != nil {
		writeAPIError(err, w)
		return
	}

	// JSON documents pass through parsed; anything else goes out as a JSON
	// string, matching how the content went in.
	w.Header().Set("Content-Type", "application/json")
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		fmt.Fprint(w, trimmed)
		return
	}

	json.NewEncoder(w).Encode(content)
}

// rawToString renders an update's content field: JSON strings are unquoted,
// arrays and objects are stored as their JSON text.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// writeAPIError maps the error kinds of the gist and license packages onto
// HTTP status codes. Remote failures keep their upstream status.
func writeAPIError(err error, w http.ResponseWriter) {
	var authErr *gist.AuthError
	var apiErr *gist.APIError

	switch {
	case errors.As(err, &authErr):
		writeError(http.StatusUnauthorized, authErr.Message, w)
	case errors.Is(err, gist.ErrNotFound), errors.Is(err, license.ErrLicenseNotFound):
		writeError(http.StatusNotFound, err.Error(), w)
	case errors.Is(err, license.ErrBadContent),
		errors.Is(err, license.ErrInvalidDays),
		errors.Is(err, gist.ErrFileNotFound):
		writeError(http.StatusBadRequest, err.Error(), w)
	case errors.As(err, &apiErr):
		writeError(apiErr.Status, apiErr.Error(), w)
	default:
		writeError(http.StatusInternalServerError, err.Error(), w)
	}
}
