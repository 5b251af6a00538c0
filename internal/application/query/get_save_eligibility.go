package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SAVE ELIGIBILITY QUERY
// Отвечает на вопрос "можно ли спасти серию сейчас" без изменения данных.
// Результат производный и никогда не сохраняется.
// ══════════════════════════════════════════════════════════════════════════════

// GetSaveEligibilityQuery содержит параметры запроса.
type GetSaveEligibilityQuery struct {
	// HabitID - личная или групповая привычка.
	HabitID string

	// OwnerID и Scope - чей инвентарь показать, если обрыва ещё не было.
	// При найденном обрыве используются его владелец и область.
	OwnerID string
	Scope   saver.Scope
}

// GetSaveEligibilityHandler обрабатывает запрос.
type GetSaveEligibilityHandler struct {
	savers saver.Store
	config Config
}

// NewGetSaveEligibilityHandler создаёт новый обработчик.
func NewGetSaveEligibilityHandler(savers saver.Store, config Config) *GetSaveEligibilityHandler {
	return &GetSaveEligibilityHandler{savers: savers, config: config.withDefaults()}
}

// Handle выполняет запрос.
func (h *GetSaveEligibilityHandler) Handle(ctx context.Context, q GetSaveEligibilityQuery) (EligibilityDTO, error) {
	if q.HabitID == "" {
		return EligibilityDTO{}, shared.ValidationError("query", "GetSaveEligibility", "habit_id is required")
	}
	if q.Scope == "" {
		q.Scope = saver.ScopePersonal
	}
	now, _ := h.config.now()
	return eligibility(ctx, h.savers, q.HabitID, q.OwnerID, q.Scope, now, h.config.SaverWindow)
}

// eligibility загружает последний обрыв и инвентарь и проверяет правила спасителя.
func eligibility(ctx context.Context, savers saver.Store, habitID, ownerID string, scope saver.Scope, now time.Time, window time.Duration) (EligibilityDTO, error) {
	brk, err := savers.LatestBreak(ctx, habitID)
	switch {
	case shared.IsNotFound(err):
		brk = nil
	case err != nil:
		return EligibilityDTO{}, fmt.Errorf("load latest break: %w", err)
	}

	if brk != nil {
		ownerID, scope = brk.OwnerID, brk.Scope
	}

	var inv *saver.Inventory
	if ownerID != "" {
		inv, err = savers.Inventory(ctx, ownerID, scope)
		if err != nil {
			return EligibilityDTO{}, fmt.Errorf("load inventory: %w", err)
		}
	}

	e := saver.CheckEligibility(brk, inv, now, window)
	dto := EligibilityDTO{
		CanSave:       e.CanSave,
		LastBreakDate: e.LastBreakDate,
		Available:     e.Available,
	}
	if !e.ExpiresAt.IsZero() {
		exp := e.ExpiresAt
		dto.ExpiresAt = &exp
	}
	if !e.CanSave {
		dto.Reason = string(e.Reason)
		dto.Message = e.Reason.Message()
		dto.CanAcquireMore = e.Reason.CanAcquireMore()
	}
	return dto, nil
}
