package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	votingledger "ballotbox/contexts/governance/voting-ledger"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	ledgerhttp "ballotbox/contexts/governance/voting-ledger/transport/http"

	_ "ballotbox/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	ledger votingledger.Module
}

func New(ledger votingledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		ledger: ledger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled and then drains open requests.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/ledgers", s.handleCreateLedger)
	s.mux.HandleFunc("GET /v1/ledgers", s.handleListLedgers)
	s.mux.HandleFunc("GET /v1/ledgers/{ledger_id}", s.handleGetLedger)
	s.mux.HandleFunc("POST /v1/ledgers/{ledger_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("PUT /v1/ledgers/{ledger_id}/votes", s.handleChangeVote)
	s.mux.HandleFunc("DELETE /v1/ledgers/{ledger_id}/votes", s.handleClearVote)
	s.mux.HandleFunc("POST /v1/ledgers/{ledger_id}/rights/transfer", s.handleTransferRight)
	s.mux.HandleFunc("GET /v1/ledgers/{ledger_id}/rights", s.handleListRights)
	s.mux.HandleFunc("GET /v1/ledgers/{ledger_id}/results", s.handleResults)
	s.mux.HandleFunc("POST /v1/ledgers/{ledger_id}/settle", s.handleSettleLedger)
	s.mux.HandleFunc("POST /v1/ledgers/{ledger_id}/randomness/retry", s.handleRetryRandomness)

	s.mux.HandleFunc("POST /v1/randomness/fulfill", s.handleFulfillRandomness)
	s.mux.HandleFunc("GET /v1/randomness/stalled", s.handleStalled)
	s.mux.HandleFunc("GET /v1/schedule", s.handleSchedule)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.CreateLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.CreateLedgerHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.GetLedgerHandler(r.Context(), r.PathValue("ledger_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.CastVoteHandler(r.Context(), r.PathValue("ledger_id"), principal, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChangeVote(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req ledgerhttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.ChangeVoteHandler(r.Context(), r.PathValue("ledger_id"), principal, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearVote(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	resp, err := s.ledger.Handler.ClearVoteHandler(r.Context(), r.PathValue("ledger_id"), principal)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransferRight(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.TransferRightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.TransferRightHandler(r.Context(), r.PathValue("ledger_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRights(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ListRightsHandler(r.Context(), r.PathValue("ledger_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ResultsHandler(r.Context(), r.PathValue("ledger_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettleLedger(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.SettleLedgerHandler(r.Context(), r.PathValue("ledger_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetryRandomness(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.RetryRandomnessHandler(r.Context(), r.PathValue("ledger_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleFulfillRandomness(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.FulfillRandomnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.ledger.Handler.FulfillRandomnessHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ListLedgersHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStalled(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.StalledHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.ScheduleHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if principal == "" {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return principal, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, status, code, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domainerrors.ErrLedgerNotFound):
		return http.StatusNotFound, "ledger_not_found"
	case errors.Is(err, domainerrors.ErrScheduleEntryNotFound):
		return http.StatusNotFound, "schedule_entry_not_found"
	case errors.Is(err, domainerrors.ErrInvalidLedgerInput):
		return http.StatusBadRequest, "invalid_ledger_input"
	case errors.Is(err, domainerrors.ErrInvalidTransfer):
		return http.StatusBadRequest, "invalid_transfer"
	case errors.Is(err, domainerrors.ErrInvalidRandomValue):
		return http.StatusBadRequest, "invalid_random_value"
	case errors.Is(err, domainerrors.ErrInvalidOption):
		return http.StatusUnprocessableEntity, "invalid_option"
	case errors.Is(err, domainerrors.ErrRightNotHeld):
		return http.StatusForbidden, "right_not_held"
	case errors.Is(err, domainerrors.ErrNotDueYet):
		return http.StatusTooEarly, "not_due_yet"
	case errors.Is(err, domainerrors.ErrVoteClosed):
		return http.StatusConflict, "vote_closed"
	case errors.Is(err, domainerrors.ErrAlreadyVoted):
		return http.StatusConflict, "already_voted"
	case errors.Is(err, domainerrors.ErrNoExistingVote):
		return http.StatusConflict, "no_existing_vote"
	case errors.Is(err, domainerrors.ErrSameOption):
		return http.StatusConflict, "same_option"
	case errors.Is(err, domainerrors.ErrNotClosed):
		return http.StatusConflict, "not_closed"
	case errors.Is(err, domainerrors.ErrNoVotesCast):
		return http.StatusConflict, "no_votes_cast"
	case errors.Is(err, domainerrors.ErrAlreadyExecuted):
		return http.StatusConflict, "already_executed"
	case errors.Is(err, domainerrors.ErrAlreadyScheduled):
		return http.StatusConflict, "already_scheduled"
	case errors.Is(err, domainerrors.ErrRequestAlreadyPending):
		return http.StatusConflict, "request_already_pending"
	case errors.Is(err, domainerrors.ErrUnknownOrStaleRequest):
		return http.StatusConflict, "unknown_or_stale_request"
	case errors.Is(err, domainerrors.ErrRandomnessNotAvailable):
		return http.StatusConflict, "randomness_not_available"
	case errors.Is(err, domainerrors.ErrAlreadyHoldsRight):
		return http.StatusConflict, "already_holds_right"
	case errors.Is(err, domainerrors.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
