package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/shouryapratikofficial/hostel-pool/pkg/ledger"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

// Server holds the ledger instance and request plumbing.
type Server struct {
	ledger    *ledger.Ledger
	storage   store.Storage // kept to close it on shutdown
	jwtSecret []byte
}

func NewServer(s store.Storage, jwtSecret []byte) *Server {
	return &Server{
		ledger:    ledger.NewLedger(s),
		storage:   s,
		jwtSecret: jwtSecret,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  ledger.Kind `json:"kind,omitempty"`
}

// writeError maps the engine failure taxonomy onto HTTP statuses so clients
// can branch on the kind (e.g. offer the reactivation flow on
// account_inactive).
func writeError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case ledger.KindNotFound:
		status = http.StatusNotFound
	case ledger.KindInvalidAmount, ledger.KindAmountMismatch:
		status = http.StatusBadRequest
	case ledger.KindNothingDue, ledger.KindNothingToDistribute, ledger.KindNoEligibleMembers,
		ledger.KindPreconditionFailed, ledger.KindInsufficientFunds, ledger.KindInvalidState,
		ledger.KindConflict:
		status = http.StatusConflict
	case ledger.KindAccountInactive:
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal server error", Kind: kind})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
