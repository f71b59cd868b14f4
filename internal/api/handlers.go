package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundService/internal/model"
)

const maxBodyBytes = 1 << 20

type investRequest struct {
	InvestorAddress string           `json:"investorAddress"`
	USDAmount       *decimal.Decimal `json:"usdAmount"`
}

type redeemRequest struct {
	InvestorAddress string           `json:"investorAddress"`
	Shares          *decimal.Decimal `json:"shares"`
}

type balanceResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}

type healthResponse struct {
	Status    string `json:"status"`
	ChainHead uint64 `json:"chainHead,omitempty"`
}

func (h *handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetFundMetrics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) invest(w http.ResponseWriter, r *http.Request) {
	var req investRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	investor, amount, err := validateOperation(req.InvestorAddress, req.USDAmount, "usdAmount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.svc.Invest(r.Context(), investor, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	investor, amount, err := validateOperation(req.InvestorAddress, req.Shares, "shares")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.svc.Redeem(r.Context(), investor, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid investor address")
		return
	}
	balance, err := h.svc.GetBalance(r.Context(), address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Balance: balance})
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid investor address")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txs, err := h.svc.ListTransactions(r.Context(), address, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.head == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	head, err := h.head(r.Context())
	if err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chain unreachable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ChainHead: head})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("Missing required parameters")
		}
		return errors.New("invalid request body")
	}
	return nil
}

// validateOperation rejects a request before it reaches the orchestrator.
// A zero amount counts as missing.
func validateOperation(address string, amount *decimal.Decimal, field string) (string, decimal.Decimal, error) {
	address = strings.TrimSpace(address)
	if address == "" || amount == nil || amount.IsZero() {
		return "", decimal.Zero, errors.New("Missing required parameters")
	}
	if !common.IsHexAddress(address) {
		return "", decimal.Zero, errors.New("invalid investor address")
	}
	if amount.IsNegative() {
		return "", decimal.Zero, errors.New(field + " must be positive")
	}
	if err := model.CheckScale(*amount); err != nil {
		return "", decimal.Zero, errors.New(field + ": " + err.Error())
	}
	return address, *amount, nil
}
