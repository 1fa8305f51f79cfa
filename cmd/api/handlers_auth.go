package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shouryapratikofficial/hostel-pool/pkg/auth"
	"github.com/shouryapratikofficial/hostel-pool/pkg/ledger"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
)

const tokenTTL = 24 * time.Hour

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(req.Password) < 6 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "password must be at least 6 characters"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	member, err := s.ledger.RegisterMember(req.Name, req.Email, hash, models.RoleMember)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	member, err := s.ledger.GetMemberByEmail(req.Email)
	if err != nil || !auth.CheckPassword(member.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid email or password"})
		return
	}
	if !member.Active {
		// Surfaced as a distinct kind so the client can offer reactivation.
		writeError(w, ledger.E(ledger.KindAccountInactive, "this account is currently inactive"))
		return
	}

	token, err := auth.NewToken(s.jwtSecret, member.ID, member.Role, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "member": member})
}

func (s *Server) reactivateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if _, err := s.ledger.ReactivateMember(req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "your account has been reactivated, please login again"})
}
