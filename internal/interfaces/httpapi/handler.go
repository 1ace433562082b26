package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/manager-sync/external/partnerapi"
	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/usecase"
)

const maxRequestBodyBytes = 1 << 20

// strictJSON rejects unknown fields in internal job payloads.
var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

type SyncRunner interface {
	SyncGame(ctx context.Context, input usecase.SyncGameInput) (usecase.SyncResult, error)
	SyncAllActive(ctx context.Context, input usecase.SyncAllInput) (usecase.SyncAllResult, error)
	ListSyncLogs(ctx context.Context, gameID int64, limit int) ([]synclog.Entry, error)
}

type ScheduleReader interface {
	Evaluate(ctx context.Context) ([]usecase.ScheduleEntry, error)
}

type BudgetReader interface {
	Status(ctx context.Context) usecase.BudgetStatus
}

type KeyValidator interface {
	ValidateKey(ctx context.Context) (partnerapi.ValidateResult, error)
}

type Handler struct {
	sync      SyncRunner
	schedule  ScheduleReader
	budget    BudgetReader
	partner   KeyValidator
	logger    *logging.Logger
	validator *validator.Validate
}

func NewHandler(
	sync SyncRunner,
	schedule ScheduleReader,
	budget BudgetReader,
	partner KeyValidator,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		sync:      sync,
		schedule:  schedule,
		budget:    budget,
		partner:   partner,
		logger:    logger,
		validator: validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

// decodeJSONBody decodes an optional body. An empty body leaves dst untouched.
func decodeJSONBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", usecase.ErrInvalidInput, err)
	}
	if len(body) > maxRequestBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", usecase.ErrInvalidInput, maxRequestBodyBytes)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := strictJSON.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}
