// Webhook HTTP handlers.
//
// This file exposes the REST endpoints for the transaction webhook pipeline:
//   - POST /v1/webhooks/transactions                          (ingest a delivery)
//   - GET  /v1/webhooks/transactions/{transaction_id}         (current projection)
//   - GET  /v1/webhooks/transactions/{transaction_id}/logs    (audit trail, paginated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate service errors into HTTP results. The ingestion status codes
// mirror the pipeline's taxonomy: 202 for both fresh and duplicate deliveries,
// 409 for an insert that lost a race to the uniqueness constraint, 500 for
// unexpected persistence failures.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/currency"

	"github.com/tbourn/go-webhook-backend/internal/domain"
	"github.com/tbourn/go-webhook-backend/internal/services"
	"github.com/tbourn/go-webhook-backend/internal/utils"
)

// Spec §6 response messages. Clients match on these strings, so they are
// constants rather than inline literals.
const (
	msgAccepted  = "Accepted for processing"
	msgDuplicate = "Duplicate webhook received; logged only."
)

// ingestOutcomes counts ingestion results by outcome so operators can watch
// the duplicate/conflict mix without scraping logs.
var ingestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_ingest_total",
	Help: "Total ingested transaction webhooks by outcome.",
}, []string{"outcome"})

//
// Service contracts (context-aware)
//

// WebhookService defines the ingestion and query operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type WebhookService interface {
	// HandleIncoming audits one delivery and creates the transaction when the
	// identifier is fresh.
	HandleIncoming(ctx context.Context, p services.WebhookPayload) (*services.IngestResult, error)
	// GetTransaction returns the current projection for a business identifier.
	GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error)
	// ListWebhookLogs returns a page of audit rows for an identifier and the total count.
	ListWebhookLogs(ctx context.Context, txnID string, page, pageSize int) ([]domain.WebhookLog, int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the webhook API. It depends on an
// abstract service interface to keep transport concerns separate from
// business logic.
type Handlers struct {
	svc WebhookService
}

// New constructs and returns a Handlers instance bound to the given service.
func New(svc WebhookService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// ReceiveTransactionRequest is the JSON payload of one webhook delivery.
//
// The binding tags enforce presence at the transport layer; currency is
// additionally checked against ISO 4217.
type ReceiveTransactionRequest struct {
	TransactionID      string   `json:"transaction_id"      binding:"required,max=255" example:"txn_abc123"`
	SourceAccount      string   `json:"source_account"      binding:"required,max=255" example:"acc_user_123"`
	DestinationAccount string   `json:"destination_account" binding:"required,max=255" example:"acc_merchant_456"`
	Amount             *float64 `json:"amount"              binding:"required"         example:"1500.0"`
	Currency           string   `json:"currency"            binding:"required,max=10"  example:"INR"`
}

// TransactionResponse is the read projection of a transaction: exactly the
// fields a webhook sender may query back, nothing internal.
type TransactionResponse struct {
	TransactionID      string     `json:"transaction_id"      example:"txn_abc123"`
	SourceAccount      string     `json:"source_account"      example:"acc_user_123"`
	DestinationAccount string     `json:"destination_account" example:"acc_merchant_456"`
	Amount             float64    `json:"amount"              example:"1500.0"`
	Currency           string     `json:"currency"            example:"INR"`
	Status             string     `json:"status"              example:"PROCESSING"`
	CreatedAt          time.Time  `json:"created_at"`
	ProcessedAt        *time.Time `json:"processed_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTransactionLogsResponse wraps a page of audit rows and pagination
// information.
type ListTransactionLogsResponse struct {
	Logs       []domain.WebhookLog `json:"logs"`
	Pagination Pagination          `json:"pagination"`
}

//
// Helpers
//

// toTransactionResponse maps the persistence model to the read projection.
func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:      t.TransactionID,
		SourceAccount:      t.SourceAccount,
		DestinationAccount: t.DestinationAccount,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Status:             string(t.Status),
		CreatedAt:          t.CreatedAt,
		ProcessedAt:        t.ProcessedAt,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = utils.ClampInt(pageSize, 1, maxPageSize)
	return page, pageSize
}

//
// Endpoints
//

// ReceiveTransactionWebhook godoc
// @ID          receiveTransactionWebhook
// @Summary     Receive transaction webhook
// @Description Accepts a webhook payload, stores an audit entry unconditionally, and schedules background processing for fresh identifiers. Duplicate deliveries are logged and acknowledged without reprocessing.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ReceiveTransactionRequest  true  "Transaction webhook payload"
//
// @Success     202  {object} handlers.AcceptedResponse "Accepted (fresh or duplicate)"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     409  {object} handlers.ErrorResponse "Raced duplicate insert"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /webhooks/transactions [post]
func (h *Handlers) ReceiveTransactionWebhook(c *gin.Context) {
	var req ReceiveTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook payload")
		return
	}
	if _, err := currency.ParseISO(req.Currency); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("unknown currency %q", req.Currency))
		return
	}

	res, err := h.svc.HandleIncoming(c.Request.Context(), services.WebhookPayload{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             *req.Amount,
		Currency:           req.Currency,
	})
	if err != nil {
		if errors.Is(err, services.ErrTransactionExists) {
			ingestOutcomes.WithLabelValues("conflict").Inc()
			fail(c, http.StatusConflict, ErrCodeConflict,
				fmt.Sprintf("transaction %s already exists", req.TransactionID))
			return
		}
		ingestOutcomes.WithLabelValues("error").Inc()
		fail(c, http.StatusInternalServerError, ErrCodeIngestFailed, "failed to process webhook")
		return
	}

	if res.Duplicate {
		ingestOutcomes.WithLabelValues("duplicate").Inc()
		ok(c, http.StatusAccepted, AcceptedResponse{Message: msgDuplicate})
		return
	}
	ingestOutcomes.WithLabelValues("accepted").Inc()
	ok(c, http.StatusAccepted, AcceptedResponse{Message: msgAccepted})
}

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Get transaction details by transaction_id
// @Description Returns the current lifecycle projection of a transaction: accounts, amount, currency, status, and processing timestamps.
// @Tags        Webhooks
// @Produce     json
//
// @Param       transaction_id  path  string  true  "Business transaction identifier"  example(txn_abc123)
//
// @Success     200  {object} handlers.TransactionResponse
// @Failure     404  {object} handlers.ErrorResponse "Transaction not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /webhooks/transactions/{transaction_id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	txnID := c.Param("transaction_id")

	t, err := h.svc.GetTransaction(c.Request.Context(), txnID)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to fetch transaction")
		return
	}

	ok(c, http.StatusOK, toTransactionResponse(t))
}

// ListTransactionLogs godoc
// @ID          listTransactionLogs
// @Summary     List audit log entries for a transaction
// @Description Returns the append-only audit trail of every delivery received for a transaction identifier, duplicates included, for forensic replay.
// @Tags        Webhooks
// @Produce     json
//
// @Param       transaction_id  path   string  true   "Business transaction identifier"  example(txn_abc123)
// @Param       page            query  int     false  "Page number (1-based)"            default(1)
// @Param       page_size       query  int     false  "Page size (max 100)"              default(20)
//
// @Success     200  {object} handlers.ListTransactionLogsResponse
// @Failure     404  {object} handlers.ErrorResponse "Transaction not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /webhooks/transactions/{transaction_id}/logs [get]
func (h *Handlers) ListTransactionLogs(c *gin.Context) {
	txnID := c.Param("transaction_id")
	page, pageSize := clampPagination(c)

	logs, total, err := h.svc.ListWebhookLogs(c.Request.Context(), txnID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "transaction not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, "failed to list webhook logs")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTransactionLogsResponse{
		Logs: logs,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
