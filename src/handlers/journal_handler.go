// src/handlers/journal_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BanziSeo/habiOS-sub002/src/models"
	"github.com/BanziSeo/habiOS-sub002/src/services"
	"github.com/go-chi/chi/v5"
)

// JournalHandler exposes the journal service over HTTP.
type JournalHandler struct {
	service *services.JournalService
}

func NewJournalHandler(service *services.JournalService) *JournalHandler {
	return &JournalHandler{service: service}
}

func (h *JournalHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var account models.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		writeError(w, http.StatusBadRequest, "invalid account payload")
		return
	}
	created, err := h.service.CreateAccount(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *JournalHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *JournalHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *JournalHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccount(r.Context(), chi.URLParam(r, "accountID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type addTradeRequest struct {
	Trade      models.Trade `json:"trade"`
	PositionID string       `json:"positionId"`
}

func (h *JournalHandler) AddTrade(w http.ResponseWriter, r *http.Request) {
	var req addTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade payload")
		return
	}
	trade, err := h.service.AddTrade(r.Context(), req.Trade, req.PositionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (h *JournalHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.service.ListTrades(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *JournalHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTrade(r.Context(), chi.URLParam(r, "tradeID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) AmendTrade(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade patch")
		return
	}
	if err := h.service.AmendTrade(r.Context(), chi.URLParam(r, "tradeID"), patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type openPositionRequest struct {
	AccountID string       `json:"accountId"`
	Trade     models.Trade `json:"trade"`
}

func (h *JournalHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid position payload")
		return
	}
	position, err := h.service.OpenPosition(r.Context(), req.AccountID, req.Trade)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, position)
}

func (h *JournalHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.ListPositions(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *JournalHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	position, err := h.service.GetPosition(chi.URLParam(r, "positionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (h *JournalHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid position patch")
		return
	}
	if err := h.service.UpdatePosition(r.Context(), chi.URLParam(r, "positionID"), patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePosition(r.Context(), chi.URLParam(r, "positionID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) PositionTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.service.PositionTrades(chi.URLParam(r, "positionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

type saveStopLossesRequest struct {
	Stops           []services.StopLossInput `json:"stops"`
	OverrideRatchet bool                     `json:"overrideRatchet"`
}

func (h *JournalHandler) SaveStopLosses(w http.ResponseWriter, r *http.Request) {
	var req saveStopLossesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid stop-loss payload")
		return
	}
	stops, err := h.service.SaveStopLosses(r.Context(), chi.URLParam(r, "positionID"), req.Stops, req.OverrideRatchet)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

func (h *JournalHandler) ListStopLosses(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	stops, err := h.service.ListStopLosses(chi.URLParam(r, "positionID"), activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

func (h *JournalHandler) DeactivateStopLoss(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateStopLoss(r.Context(), chi.URLParam(r, "stopID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) SaveDailyPlan(w http.ResponseWriter, r *http.Request) {
	var plan models.DailyPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, "invalid daily plan payload")
		return
	}
	plan.AccountID = chi.URLParam(r, "accountID")
	if err := h.service.SaveDailyPlan(r.Context(), plan); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) GetDailyPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.GetDailyPlan(chi.URLParam(r, "accountID"), chi.URLParam(r, "planDate"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *JournalHandler) DashboardMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.GetDashboardMetrics(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *JournalHandler) SaveEquityPoint(w http.ResponseWriter, r *http.Request) {
	var point models.EquityPoint
	if err := json.NewDecoder(r.Body).Decode(&point); err != nil {
		writeError(w, http.StatusBadRequest, "invalid equity payload")
		return
	}
	point.AccountID = chi.URLParam(r, "accountID")
	if err := h.service.SaveEquityPoint(r.Context(), point); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *JournalHandler) EquityCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := h.service.GetEquityCurve(chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}
