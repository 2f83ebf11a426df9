package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"drive-ledger/internal/model"
	"drive-ledger/internal/service"
)

const dateLayout = "2006-01-02"

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func actorOf(r *http.Request) string {
	if claims := claimsFrom(r.Context()); claims != nil {
		return claims.Actor()
	}
	return "unknown"
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	user, err := s.svc.Accounts.Register(r.Context(), actorOf(r), service.RegisterInput{
		Username:       in.Username,
		Tier:           in.tier,
		ReferralCode:   in.ReferralCode,
		InitialBalance: in.InitialBalance,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, user)
}

func (s *Server) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
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

func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := s.svc.Audit.History(r.Context(), userID, queryLimit(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleResetDrive(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := s.svc.Drive.ResetDrive(r.Context(), actorOf(r), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, session)
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in reasonRequest
	if err := decodeJSON(w, r, &in, true); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if err := s.svc.Guard.ForceUnfreeze(r.Context(), actorOf(r), userID, in.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user_id": userID, "is_frozen": false})
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in adjustRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	balance, err := s.svc.Wallet.AdjustBalance(r.Context(), actorOf(r), service.AdjustInput{
		UserID:  userID,
		Account: in.account,
		Amount:  in.Amount,
		Note:    in.Note,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"account": in.account, "balance": balance})
}

func (s *Server) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in tierRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	user, err := s.svc.Accounts.ChangeTier(r.Context(), actorOf(r), userID, in.tier)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, user)
}

func (s *Server) handleDepositDecision(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		decide := s.svc.Wallet.RejectDeposit
		if approve {
			decide = s.svc.Wallet.ApproveDeposit
		}
		deposit, err := decide(r.Context(), actorOf(r), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, deposit)
	}
}

func (s *Server) handleWithdrawalDecision(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		decide := s.svc.Wallet.RejectWithdrawal
		if approve {
			decide = s.svc.Wallet.ApproveWithdrawal
		}
		withdrawal, err := decide(r.Context(), actorOf(r), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, withdrawal)
	}
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in productRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	product, err := s.svc.Drive.CreateProduct(r.Context(), actorOf(r), in.Name, in.UnitPrice)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, product)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in productUpdateRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	product, err := s.svc.Drive.SetProductActive(r.Context(), actorOf(r), productID, *in.IsActive)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, product)
}

func (s *Server) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	tier, err := model.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	var in configurationRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	cfg, err := s.svc.Drive.UpdateConfiguration(r.Context(), actorOf(r), model.DriveConfiguration{
		Tier:          tier,
		TasksRequired: in.TasksRequired,
		MinPrice:      in.MinPrice,
		MaxPrice:      in.MaxPrice,
		MinQuantity:   in.MinQuantity,
		MaxQuantity:   in.MaxQuantity,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, cfg)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		// Noon UTC stays on the same calendar day for offsets up to 12h.
		date = parsed.Add(12 * time.Hour)
	}
	earners, err := s.svc.Stats.DailyTopEarners(r.Context(), date, queryLimit(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"date": date.Format(dateLayout), "earners": earners})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := s.svc.Ledger.Reconcile(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"consistent": len(mismatches) == 0, "mismatches": mismatches})
}

func (s *Server) handleFreezeReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Guard.Inspect(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, report)
}
