package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"gistlick-api/src/config"
	"gistlick-api/src/mail"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logger zerolog.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Caller().Logger()

// ErrorRes is a JSON response containing an error message from the API.
type ErrorRes struct {
	Message string `json:"message"`
}

// MessageRes is a JSON response containing a human-readable result message.
type MessageRes struct {
	Message string `json:"message"`
}

// DeletedCountRes reports the outcome of a bulk delete.
type DeletedCountRes struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}

// Serve is an instance of the gist license API web server.
type Serve struct {
	config config.Config
	mail   mail.Config
}

// NewServe returns a Serve bound to cfg.
func NewServe(cfg config.Config) *Serve {
	return &Serve{
		config: cfg,
		mail: mail.Config{
			APIKey:   cfg.SendgridAPIKey,
			FromName: cfg.EmailName,
			FromAddr: cfg.EmailFrom,
		},
	}
}

// Router builds the full route table. Every route except the root requires a
// bearer token; the literal "expired" license route is registered before the
// "{key}" route so it wins the match.
func (s *Serve) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(addCorsHeaders)
	r.Use(requestIDMiddleware)
	r.HandleFunc("/", handleRoot).Methods("GET", "OPTIONS")

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/user/me", s.handleGetMe).Methods("GET", "OPTIONS")

	api.HandleFunc("/gists", s.handleListGists).Methods("GET", "OPTIONS")
	api.HandleFunc("/gists", s.handleCreateGist).Methods("POST")
	api.HandleFunc("/gists/{id}", s.handleGetGist).Methods("GET")
	api.HandleFunc("/gists/{id}", s.handleUpdateGist).Methods("PUT")
	api.HandleFunc("/gists/{id}", s.handleDeleteGist).Methods("DELETE")

	api.HandleFunc("/gists/{id}/licenses", s.handleListLicenses).Methods("GET", "OPTIONS")
	api.HandleFunc("/gists/{id}/licenses", s.handleCreateLicense).Methods("POST")
	api.HandleFunc("/gists/{id}/licenses/expired", s.handleDeleteExpiredLicenses).Methods("DELETE")
	api.HandleFunc("/gists/{id}/licenses/{key}", s.handleUpdateLicense).Methods("PUT")
	api.HandleFunc("/gists/{id}/licenses/{key}", s.handleDeleteLicense).Methods("DELETE")

	api.HandleFunc("/gists/{id}/raw_data", s.handleRawData).Methods("GET")

	return r
}

// InitServer exposes the API on the configured port. Blocks forever.
func (s *Serve) InitServer() {
	listenAddr := fmt.Sprintf(":%d", s.config.Port)
	log.Info().Msgf("Web server now listening on %s", listenAddr)
	log.Fatal().Msg(http.ListenAndServe(listenAddr, s.Router()).Error())
}

func writeError(code int, message string, w http.ResponseWriter) {
	logger.Info().Msg(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := ErrorRes{
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}

func writeJSON(code int, body any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
