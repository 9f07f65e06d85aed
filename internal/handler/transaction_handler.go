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

// TransactionDateLayout renders transaction dates as dd/MM/yyyy HH:mm:ss.
const TransactionDateLayout = "02/01/2006 15:04:05"

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// TransferRequest accepts ids and amount either as JSON numbers or as strings.
type TransferRequest struct {
	SourceAccountID json.Number `json:"source_account_id"`
	TargetAccountID json.Number `json:"target_account_id"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
}

type TransactionResponse struct {
	ID              string `json:"id"`
	SourceAccountID int64  `json:"source_account_id"`
	TargetAccountID int64  `json:"target_account_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	TransactionDate string `json:"transaction_date"`
}

func newTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              tx.ID.String(),
		SourceAccountID: tx.SourceAccountID,
		TargetAccountID: tx.TargetAccountID,
		Amount:          tx.Amount.String(),
		Currency:        tx.Currency.String(),
		TransactionDate: tx.TransactionDate.Format(TransactionDateLayout),
	}
}

func (req *TransferRequest) toServiceRequest() (*service.TransferRequest, error) {
	sourceID, err := parseAccountID(req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	targetID, err := parseAccountID(req.TargetAccountID)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}

	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	return &service.TransferRequest{
		SourceAccountID: sourceID,
		TargetAccountID: targetID,
		Amount:          amount,
		Currency:        currency,
	}, nil
}

func parseAccountID(n json.Number) (int64, error) {
	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.ErrInvalidAccountID.WithDetails("got " + strconv.Quote(n.String()))
	}
	return id, nil
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}

	transferReq, err := req.toServiceRequest()
	if err != nil {
		handleError(w, err)
		return
	}

	transaction, err := h.transactionService.PerformTransfer(r.Context(), transferReq)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Location", "/transactions/"+transaction.ID.String())
	writeJSON(w, http.StatusCreated, newTransactionResponse(transaction))
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.transactionService.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newTransactionResponse(transaction))
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.transactionService.ListTransactions(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	response := make([]TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		response = append(response, newTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, response)
}
