package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shouryapratikofficial/hostel-pool/pkg/auth"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
)

type contextKey string

const (
	contextKeyMemberID contextKey = "member_id"
	contextKeyRole     contextKey = "role"
)

// requireAuth validates the bearer token and stores the caller's identity on
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		memberID, role, err := auth.ParseToken(s.jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or expired token"})
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyMemberID, memberID)
		ctx = context.WithValue(ctx, contextKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin additionally checks the admin role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if role, _ := r.Context().Value(contextKeyRole).(models.Role); role != models.RoleAdmin {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin access required"})
			return
		}
		next(w, r)
	})
}

func callerID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(contextKeyMemberID).(uuid.UUID)
	return id
}
