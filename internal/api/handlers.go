package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/payment"
)

type stkPushRequest struct {
	PhoneNumber string      `json:"phoneNumber" form:"phoneNumber" binding:"required"`
	Amount      json.Number `json:"amount" form:"amount" binding:"required"`
}

func (s *Server) stkPush(c *gin.Context) {
	var req stkPushRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Phone number and amount are required"})
		return
	}
	amount, err := strconv.ParseInt(req.Amount.String(), 10, 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Amount must be a positive whole number"})
		return
	}

	// A push the payer has already approved must still be reconciled if the
	// client goes away; the engine's own deadline bounds the wait.
	ctx := context.WithoutCancel(c.Request.Context())

	outcome, err := s.payments.Pay(ctx, req.PhoneNumber, amount)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Transaction completed successfully",
			"receipt":   outcome.Receipt,
			"accountNo": outcome.AccountNo,
		})
	case errors.Is(err, payment.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"paid": true})
	case errors.Is(err, payment.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"paid": false, "inProgress": true})
	default:
		body := gin.H{"success": false, "error": err.Error()}
		if outcome != nil {
			body["receipt"] = outcome.Receipt
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("stk push failed", zap.String("msisdn", req.PhoneNumber), zap.Int64("amount", amount), zap.Error(err))
		}
		c.JSON(status, body)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, payment.ErrInit), errors.Is(err, payment.ErrStatus):
		return http.StatusBadGateway
	case errors.Is(err, payment.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) amount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"amount": s.opts.DefaultAmount})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.started).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
