package api

import (
	"net/http"
	"strconv"

	"drive-ledger/internal/service"
)

// queryLimit reads the limit query parameter, 0 when absent or malformed.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := s.svc.Accounts.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, user)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.Ledger.History(r.Context(), userID, queryLimit(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleDepositRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in depositRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	deposit, err := s.svc.Wallet.RequestDeposit(r.Context(), userID, in.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, deposit)
}

func (s *Server) handleWithdrawRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in withdrawRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	withdrawal, err := s.svc.Wallet.RequestWithdrawal(r.Context(), service.WithdrawalInput{
		UserID:   userID,
		Amount:   in.Amount,
		Address:  in.Address,
		Password: in.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, withdrawal)
}

func (s *Server) handleWithdrawPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in passwordRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := s.svc.Wallet.SetWithdrawPassword(r.Context(), userID, in.Password); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}
