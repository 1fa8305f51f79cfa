package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
)

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.GetAllMembers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) listContributionsHandler(w http.ResponseWriter, r *http.Request) {
	contributions, err := s.ledger.GetAllContributions()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

func (s *Server) approveLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid loan id"})
		return
	}
	loan, err := s.ledger.ApproveLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) rejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := loanIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid loan id"})
		return
	}
	loan, err := s.ledger.RejectLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) distributeProfitHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodStart *time.Time `json:"period_start"`
		PeriodEnd   *time.Time `json:"period_end"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	result, err := s.ledger.DistributeProfitNow(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) poolStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.GetPoolStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.GetSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	updated, err := s.ledger.UpdateSettings(&settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// referenceDate lets the cron endpoints replay a past run; it defaults to now.
func referenceDateFromRequest(r *http.Request) (time.Time, error) {
	var req struct {
		ReferenceDate *time.Time `json:"reference_date"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return time.Time{}, err
		}
	}
	if req.ReferenceDate != nil {
		return *req.ReferenceDate, nil
	}
	return time.Now(), nil
}

func (s *Server) weeklyDuesSweepHandler(w http.ResponseWriter, r *http.Request) {
	referenceDate, err := referenceDateFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	result, err := s.ledger.RunWeeklyDuesSweep(referenceDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) monthlyProfitHandler(w http.ResponseWriter, r *http.Request) {
	referenceDate, err := referenceDateFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	result, err := s.ledger.RunMonthlyProfitDistribution(referenceDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
