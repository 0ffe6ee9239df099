package handlers

import (
	"errors"
	"io"
	"net/http"

	"saascore/billing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func (a *API) GetPendingTransactions(c *gin.Context) {
	ctx, span := a.startSpan(c, "GetPendingTransactions")
	defer span.End()

	txns, err := a.engine.GetPendingTransactions(ctx, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

type AdjudicateRequest struct {
	Notes string `json:"notes"`
}

// bindNotes reads the optional adjudication body. An empty body is allowed.
func bindNotes(c *gin.Context) (string, bool) {
	var req AdjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", true
		}
		badRequest(c, err.Error())
		return "", false
	}
	return req.Notes, true
}

// requireOperator answers 403 unless the caller may adjudicate payments.
func (a *API) requireOperator(c *gin.Context) bool {
	if err := a.guard.RequireElevated(principal(c)); err != nil {
		respondError(c, &billing.Error{Kind: billing.KindForbidden, Message: "you do not have access to this resource"})
		return false
	}
	return true
}

func (a *API) ApproveTransaction(c *gin.Context) {
	ctx, span := a.startSpan(c, "ApproveTransaction")
	defer span.End()

	id, ok := idParam(c, "id")
	if !ok || !a.requireOperator(c) {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("transaction_id", int64(id)))

	approval, err := a.engine.ApproveTransaction(ctx, principal(c), id, notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, approval)
}

func (a *API) RejectTransaction(c *gin.Context) {
	ctx, span := a.startSpan(c, "RejectTransaction")
	defer span.End()

	id, ok := idParam(c, "id")
	if !ok || !a.requireOperator(c) {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("transaction_id", int64(id)))

	txn, err := a.engine.RejectTransaction(ctx, principal(c), id, notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// RunBillingCycle lets an operator run invoice generation and the lifecycle
// sweep without waiting for the schedule.
func (a *API) RunBillingCycle(c *gin.Context) {
	ctx, span := a.startSpan(c, "RunBillingCycle")
	defer span.End()

	p := principal(c)
	if !a.requireOperator(c) {
		return
	}
	if err := a.engine.RunBillingCycle(ctx); err != nil {
		span.RecordError(err)
		a.logger.Error("manual billing cycle failed", zap.Uint("user_id", p.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing cycle finished with errors", "kind": "internal", "retryable": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Billing cycle completed"})
}
