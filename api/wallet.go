package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type addFundsRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	PaymentID string          `json:"payment_id" validate:"omitempty,max=255"`
}

type verifyPaymentRequest struct {
	OrderID   string          `json:"order_id" validate:"required,max=255"`
	PaymentID string          `json:"payment_id" validate:"required,max=255"`
	Signature string          `json:"signature" validate:"omitempty,max=255"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
}

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	AccountNumber string          `json:"account_number" validate:"required,min=6,max=34"`
	IFSCCode      string          `json:"ifsc_code" validate:"required,len=11"`
}

func (s *Server) getWallet(c *gin.Context) {
	page, limit := pageParams(c)
	w, txs, total, err := s.svc.Wallets.Get(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":       w,
		"transactions": txs,
		"total":        total,
	})
}

func (s *Server) addFunds(c *gin.Context) {
	var req addFundsRequest
	if !s.bindJSON(c, &req) {
		return
	}
	w, err := s.svc.Wallets.AddFunds(c.Request.Context(), currentUserID(c), req.Amount,
		"Wallet top-up", req.PaymentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// verifyPayment credits the wallet after the payment gateway has verified
// the charge. Signature verification happens gateway-side.
func (s *Server) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	w, err := s.svc.Wallets.AddFunds(c.Request.Context(), currentUserID(c), req.Amount,
		"Wallet top-up", req.PaymentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

func (s *Server) withdraw(c *gin.Context) {
	var req withdrawRequest
	if !s.bindJSON(c, &req) {
		return
	}
	w, err := s.svc.Wallets.Withdraw(c.Request.Context(), currentUserID(c), req.Amount,
		req.AccountNumber, req.IFSCCode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// pageParams reads the page/limit query parameters with defaults.
func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
