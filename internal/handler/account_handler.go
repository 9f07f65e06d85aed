package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
	"fund-transfers/internal/service"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	AccountID      json.Number `json:"account_id"`
	InitialBalance json.Number `json:"initial_balance"`
	Currency       string      `json:"currency"`
}

type AccountResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}

func newAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID: account.ID,
		Balance:   account.Balance.String(),
		Currency:  account.Currency.String(),
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}

	accountID, err := parseAccountID(req.AccountID)
	if err != nil {
		handleError(w, err)
		return
	}

	initialBalance, err := decimal.NewFromString(req.InitialBalance.String())
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid initial_balance format").WithDetails(err.Error()))
		return
	}

	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		handleError(w, err)
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), accountID, initialBalance, currency)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Location", "/accounts/"+strconv.FormatInt(account.ID, 10))
	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.GetAccount(r.Context(), mux.Vars(r)["account_id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}
