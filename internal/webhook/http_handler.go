package webhook

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/clearledger/karbonsync/internal/repository"
)

// SignatureHeader carries the HMAC-SHA256 digest of the raw request body.
const SignatureHeader = "X-Karbon-Signature"

// maxBodySize bounds webhook request bodies.
const maxBodySize = 1 << 20

// Handler exposes webhook ingestion as an HTTP endpoint.
type Handler struct {
	ingestor *Ingestor
}

// NewHTTPHandler wraps the ingestor with a POST endpoint.
func NewHTTPHandler(ingestor *Ingestor) http.Handler {
	return &Handler{ingestor: ingestor}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.ingestor.Process(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		writeError(w, statusFor(err), err, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadEnvelope):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DeliveriesHandler exposes the webhook delivery audit trail.
type DeliveriesHandler struct {
	deliveries repository.WebhookDeliveryRepository
}

// NewDeliveriesHandler wraps the delivery repository with a GET endpoint.
func NewDeliveriesHandler(deliveries repository.WebhookDeliveryRepository) http.Handler {
	return &DeliveriesHandler{deliveries: deliveries}
}

func (h *DeliveriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	deliveries, err := h.deliveries.List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, deliveries)
}

type errorResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	EventType   string `json:"eventType,omitempty"`
	ResourceKey string `json:"resourceKey,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error, result Result) {
	writeJSON(w, status, errorResponse{
		Success:     false,
		Error:       err.Error(),
		EventType:   result.EventType,
		ResourceKey: result.ResourceKey,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
