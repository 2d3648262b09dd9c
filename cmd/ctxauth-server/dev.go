package main

import (
	"encoding/json"
	"net/http"
	"strings"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/httpapi"
	"github.com/MrEthical07/ctxAuth/middleware"
	"github.com/gorilla/mux"
)

type devRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// registerDevRoutes mounts passwordless login and signup helpers. They stand
// in for the host's own credential check and must never run in production.
func registerDevRoutes(r *mux.Router, engine *ctxAuth.Engine, handlers *httpapi.Handlers, trustForwarded bool) {
	s := r.PathPrefix("/dev").Subrouter()
	s.Use(middleware.RequestMetadata(trustForwarded))

	s.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDevRequest(w, r)
		if !ok {
			return
		}
		if err := engine.SendSignupVerification(r.Context(), req.Email, req.Name); err != nil {
			status, msg := httpapi.StatusFor(err)
			writeJSON(w, status, map[string]string{"message": msg})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Verification email sent"})
	}).Methods("POST")

	s.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDevRequest(w, r)
		if !ok {
			return
		}
		res, err := engine.Login(r.Context(), req.Email)
		handlers.WriteLoginResult(w, r, res, err)
	}).Methods("POST")
}

func decodeDevRequest(w http.ResponseWriter, r *http.Request) (devRequest, bool) {
	var req devRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email is required"})
		return devRequest{}, false
	}
	req.Email = strings.TrimSpace(req.Email)
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
