package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scootr/internal/domain"
	"scootr/internal/id"
	"scootr/internal/middleware"
	"scootr/internal/service"
)

// WalletHandler handles HTTP requests for wallets.
type WalletHandler struct {
	ledger *service.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// CreateWalletRequest is the HTTP request body for opening a wallet.
type CreateWalletRequest struct {
	Name string `json:"name"`
}

// WalletResponse is the HTTP representation of a wallet.
type WalletResponse struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Name                 string    `json:"name"`
	Balance              MoneyJSON `json:"balance"`
	DefaultPaymentMethod string    `json:"default_payment_method,omitempty"`
	CreatedAt            string    `json:"created_at"`
}

// TransactionResponse is the HTTP representation of a ledger entry.
type TransactionResponse struct {
	ID        string    `json:"id"`
	Amount    MoneyJSON `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp string    `json:"timestamp"`
}

func toWalletResponse(w *domain.Wallet) WalletResponse {
	resp := WalletResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Name:      w.Name,
		Balance:   toMoneyJSON(w.Balance),
		CreatedAt: formatTime(w.CreatedAt),
	}
	if w.DefaultPaymentMethod != nil {
		resp.DefaultPaymentMethod = *w.DefaultPaymentMethod
	}
	return resp
}

// CreateWallet handles POST /v1/wallets
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	wallet, err := h.ledger.OpenWallet(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toWalletResponse(wallet))
}

// GetWallet handles GET /v1/wallets/:id
func (h *WalletHandler) GetWallet(c *gin.Context) {
	walletID, ok := pathID(c, "id", id.PrefixWallet)
	if !ok {
		return
	}

	wallet, err := h.ledger.GetWallet(c.Request.Context(), walletID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}

// ListTransactions handles GET /v1/wallets/:id/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	walletID, ok := pathID(c, "id", id.PrefixWallet)
	if !ok {
		return
	}

	txns, err := h.ledger.Transactions(c.Request.Context(), walletID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, TransactionResponse{
			ID:        t.ID,
			Amount:    toMoneyJSON(t.Amount),
			Reason:    string(t.Reason),
			Timestamp: formatTime(t.Timestamp),
		})
	}
	respondJSON(c, http.StatusOK, gin.H{"transactions": out})
}
