package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/metrics"
	"calllog-dashboard/internal/validator"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds a webhook body; transcripts of long calls stay well under it.
const maxBodyBytes = 4 << 20

// RecordInserter is the slice of the record store the ingest path needs.
type RecordInserter interface {
	InsertCall(ctx context.Context, r calls.Record) (calls.Record, error)
}

// Broadcaster pushes a stored record to live viewers. It never fails the caller.
type Broadcaster interface {
	BroadcastNewCall(r calls.Record) int
}

// Handler converts platform webhooks to records, persists them and fans them out.
//
// Signature checks run over the exact bytes received.
type Handler struct {
	Store     RecordInserter
	Hub       Broadcaster
	Signature SignaturePolicy

	Normalizer Normalizer
	Now        func() time.Time
}

func (h Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// readBody reads the raw body and enforces the signature policy.
func (h Handler) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.Validation("Payload too large")
		}
		return nil, apperrors.Validation("Invalid request body")
	}
	if err := h.Signature.Check(body, c.GetHeader(SignatureHeader)); err != nil {
		return nil, err
	}
	return body, nil
}

// Ingest handles POST /webhook/elevenlabs.
func (h Handler) Ingest(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		log.Warn("webhook rejected", "err", err)
		metrics.IncWebhook("ingest", "", "rejected")
		abortWithError(c, err)
		return
	}

	n := h.Normalizer
	if n.Now == nil {
		n.Now = h.now
	}
	rec, shape, err := n.Normalize(body)
	if err != nil {
		log.Warn("webhook payload rejected", "shape", shape, "err", err)
		metrics.IncWebhook("ingest", string(shape), "invalid")
		abortWithError(c, err)
		return
	}

	started := time.Now()
	stored, err := h.Store.InsertCall(c.Request.Context(), rec)
	metrics.ObserveStoreOperation("insert_call", started, err)
	if err != nil {
		log.Error("call insert failed", "call_id", rec.ID, "err", err)
		metrics.IncWebhook("ingest", string(shape), "store_error")
		abortWithError(c, err)
		return
	}

	delivered := 0
	if h.Hub != nil {
		delivered = h.Hub.BroadcastNewCall(stored)
	}

	metrics.IncWebhook("ingest", string(shape), "stored")
	log.Info("call processed",
		"call_id", stored.ID,
		"agent_id", stored.AgentID,
		"shape", shape,
		"viewers", delivered,
	)
	c.JSON(http.StatusOK, gin.H{"message": "Webhook processed successfully", "call_id": stored.ID})
}

// Ping handles GET /webhook/elevenlabs so operators can check reachability.
func (h Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Webhook endpoint is working",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

type initiationRequest struct {
	CallerID     string `json:"caller_id" validate:"required"`
	AgentID      string `json:"agent_id,omitempty"`
	CalledNumber string `json:"called_number,omitempty"`
	CallSID      string `json:"call_sid,omitempty"`
}

// InitiationResponse is the acknowledgment the platform attaches to the session as dynamic variables.
type InitiationResponse struct {
	Type             string            `json:"type"`
	DynamicVariables map[string]string `json:"dynamic_variables"`
}

const initiationResponseType = "conversation_initiation_client_data"

// Initiation handles POST /webhook/elevenlabs-initiation-data.
func (h Handler) Initiation(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := h.readBody(c)
	if err != nil {
		log.Warn("initiation webhook rejected", "err", err)
		metrics.IncWebhook("initiation", "", "rejected")
		abortWithError(c, err)
		return
	}

	var req initiationRequest
	if err := decodeJSON(body, &req); err != nil {
		metrics.IncWebhook("initiation", "", "invalid")
		abortWithError(c, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		metrics.IncWebhook("initiation", "", "invalid")
		abortWithError(c, apperrors.Validation("Missing caller_id"))
		return
	}

	vars := map[string]string{"caller_id": req.CallerID}
	if req.AgentID != "" {
		vars["agent_id"] = req.AgentID
	}

	log.Info("initiation webhook received",
		"caller_id", req.CallerID,
		"agent_id", req.AgentID,
		"called_number", req.CalledNumber,
		"call_sid", req.CallSID,
	)
	metrics.IncWebhook("initiation", "", "accepted")
	c.JSON(http.StatusOK, InitiationResponse{Type: initiationResponseType, DynamicVariables: vars})
}

func decodeJSON(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.Validation(msgInvalidJSON)
	}
	return nil
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{"error": apperrors.Message(err)})
}
