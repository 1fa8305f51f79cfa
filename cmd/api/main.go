package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/shouryapratikofficial/hostel-pool/pkg/auth"
	"github.com/shouryapratikofficial/hostel-pool/pkg/ledger"
	"github.com/shouryapratikofficial/hostel-pool/pkg/models"
	"github.com/shouryapratikofficial/hostel-pool/pkg/notify"
	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

func main() {
	// Load .env if present without overwriting already-set environment
	// variables, so container environments win over local files.
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("Required environment variable JWT_SECRET is not set")
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "hostelpool.db"
	}
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	// Singletons are seeded explicitly at startup; the engines fail closed if
	// they are missing at operation time.
	if err := sqliteStore.Bootstrap(); err != nil {
		log.Fatalf("Failed to bootstrap singletons: %v", err)
	}

	server := NewServer(sqliteStore, []byte(jwtSecret))

	if err := seedAdmin(server.ledger); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	router := mux.NewRouter()
	registerRoutes(router, server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notify.NewDispatcher(sqliteStore, notify.NewEmailSenderFromEnv(), 30*time.Second)
	go dispatcher.Run(ctx)

	go runScheduler(ctx, server.ledger)

	log.Printf("Server starting on %s", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}

func registerRoutes(router *mux.Router, s *Server) {
	router.HandleFunc("/auth/register", s.registerHandler).Methods("POST")
	router.HandleFunc("/auth/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/auth/reactivate", s.reactivateHandler).Methods("POST")

	router.HandleFunc("/me/dashboard", s.requireAuth(s.dashboardHandler)).Methods("GET")
	router.HandleFunc("/me/obligation", s.requireAuth(s.obligationHandler)).Methods("GET")
	router.HandleFunc("/me/contributions", s.requireAuth(s.payContributionHandler)).Methods("POST")
	router.HandleFunc("/me/history", s.requireAuth(s.historyHandler)).Methods("GET")
	router.HandleFunc("/me/transactions", s.requireAuth(s.transactionsHandler)).Methods("GET")
	router.HandleFunc("/me/loans", s.requireAuth(s.requestLoanHandler)).Methods("POST")
	router.HandleFunc("/me/loans", s.requireAuth(s.myLoansHandler)).Methods("GET")
	router.HandleFunc("/loans/{id}/repayment", s.requireAuth(s.repaymentPreviewHandler)).Methods("GET")
	router.HandleFunc("/loans/{id}/repay", s.requireAuth(s.repayLoanHandler)).Methods("POST")
	router.HandleFunc("/me/withdrawals", s.requireAuth(s.withdrawHandler)).Methods("POST")
	router.HandleFunc("/me/deactivate", s.requireAuth(s.deactivateHandler)).Methods("POST")

	router.HandleFunc("/admin/members", s.requireAdmin(s.listMembersHandler)).Methods("GET")
	router.HandleFunc("/admin/loans", s.requireAdmin(s.listLoansHandler)).Methods("GET")
	router.HandleFunc("/admin/contributions", s.requireAdmin(s.listContributionsHandler)).Methods("GET")
	router.HandleFunc("/admin/loans/{id}/approve", s.requireAdmin(s.approveLoanHandler)).Methods("POST")
	router.HandleFunc("/admin/loans/{id}/reject", s.requireAdmin(s.rejectLoanHandler)).Methods("POST")
	router.HandleFunc("/admin/profit/distribute", s.requireAdmin(s.distributeProfitHandler)).Methods("POST")
	router.HandleFunc("/admin/stats", s.requireAdmin(s.poolStatsHandler)).Methods("GET")
	router.HandleFunc("/admin/settings", s.requireAdmin(s.getSettingsHandler)).Methods("GET")
	router.HandleFunc("/admin/settings", s.requireAdmin(s.updateSettingsHandler)).Methods("PUT")

	router.HandleFunc("/cron/weekly-dues", s.requireAdmin(s.weeklyDuesSweepHandler)).Methods("POST")
	router.HandleFunc("/cron/monthly-profit", s.requireAdmin(s.monthlyProfitHandler)).Methods("POST")
}

// seedAdmin creates the admin account on first boot when ADMIN_EMAIL and
// ADMIN_PASSWORD are set.
func seedAdmin(l *ledger.Ledger) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}
	if _, err := l.GetMemberByEmail(email); err == nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = l.RegisterMember("Administrator", email, hash, models.RoleAdmin)
	if err != nil {
		return err
	}
	log.Printf("Seeded admin account %s", email)
	return nil
}

// runScheduler drives the periodic jobs. Both entry points are idempotent,
// so invoking them more often than their natural cadence is harmless: the
// sweep creates at most one due per (member, week), and the distribution
// drains the profit pool on its first successful run of the month.
func runScheduler(ctx context.Context, l *ledger.Ledger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if _, err := l.RunWeeklyDuesSweep(now); err != nil {
				log.Printf("weekly dues sweep failed: %v", err)
			}
			if now.Day() == 1 {
				if _, err := l.RunMonthlyProfitDistribution(now); err != nil {
					if kind := ledger.KindOf(err); kind == ledger.KindNothingToDistribute || kind == ledger.KindNoEligibleMembers {
						continue
					}
					log.Printf("monthly profit distribution failed: %v", err)
				}
			}
		}
	}
}
