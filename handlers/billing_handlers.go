package handlers

import (
	"net/http"

	"saascore/billing"
	"saascore/config"
	"saascore/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

func (a *API) GetSubscription(c *gin.Context) {
	ctx, span := a.startSpan(c, "GetSubscription")
	defer span.End()

	orgID, ok := idParam(c, "orgId")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("organization_id", int64(orgID)))

	sub, err := a.engine.GetSubscription(ctx, principal(c), orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (a *API) GetInvoices(c *gin.Context) {
	ctx, span := a.startSpan(c, "GetInvoices")
	defer span.End()

	orgID, ok := idParam(c, "orgId")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("organization_id", int64(orgID)))

	invoices, err := a.engine.GetInvoices(ctx, principal(c), orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// InvoiceResponse carries the bank transfer instructions while the invoice is unpaid.
type InvoiceResponse struct {
	*models.Invoice
	BankDetails *config.BankDetails `json:"bank_details,omitempty"`
}

func (a *API) GetInvoice(c *gin.Context) {
	ctx, span := a.startSpan(c, "GetInvoice")
	defer span.End()

	invoiceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("invoice_id", int64(invoiceID)))

	invoice, err := a.engine.GetInvoice(ctx, principal(c), invoiceID)
	if err != nil {
		respondError(c, err)
		return
	}
	res := InvoiceResponse{Invoice: invoice}
	if invoice.Status.Payable() {
		bank := a.engine.BankDetails()
		res.BankDetails = &bank
	}
	c.JSON(http.StatusOK, res)
}

// CreateTransactionRequest carries no binding rules: the engine validates the
// claim after the membership check.
type CreateTransactionRequest struct {
	Amount        int64  `json:"amount"`
	BankReference string `json:"bank_reference"`
	Notes         string `json:"notes"`
}

func (a *API) CreateTransaction(c *gin.Context) {
	ctx, span := a.startSpan(c, "CreateTransaction")
	defer span.End()

	invoiceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int64("invoice_id", int64(invoiceID)),
		attribute.Int64("amount", req.Amount),
	)

	txn, err := a.engine.CreateTransaction(ctx, principal(c), billing.CreateTransactionInput{
		InvoiceID:     invoiceID,
		BankReference: req.BankReference,
		Amount:        req.Amount,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}
