package api

import (
	"net/http"

	"drive-ledger/internal/service"
)

// currentUser returns the user id of the token. Admin tokens without a user
// id cannot call user routes.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims := claimsFrom(r.Context())
	if claims == nil || claims.UserID <= 0 {
		writeError(w, http.StatusForbidden, CodeForbidden, "token is not bound to a user")
		return 0, false
	}
	return claims.UserID, true
}

func (s *Server) handleStartDrive(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := decodeJSON(w, r, &emptyRequest{}, true); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	result, err := s.svc.Drive.StartDrive(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, result)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	assignment, err := s.svc.Drive.NextAssignment(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, assignment)
}

func (s *Server) handleSaveOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in saveOrderRequest
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	result, err := s.svc.Drive.SaveOrder(r.Context(), service.SaveOrderInput{
		UserID:        userID,
		SessionID:     in.SessionID,
		SlotIndex:     *in.SlotIndex,
		ProductID:     in.ProductID,
		PurchasePrice: in.PurchasePrice,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeOK(w, status, result)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	progress, err := s.svc.Drive.GetProgress(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, progress)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orders, err := s.svc.Drive.ListOrders(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": orders})
}
