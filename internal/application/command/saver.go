package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK SAVER COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// ApplySaverCommand uses one saver on the latest break of a habit
// (a personal habit or a group habit).
type ApplySaverCommand struct {
	HabitID string
}

// GrantSaversCommand adds savers to an inventory.
type GrantSaversCommand struct {
	OwnerID string
	Scope   saver.Scope
	Amount  int
}

// SaverHandler handles streak saver commands.
type SaverHandler struct {
	engine    *Engine
	store     saver.Store
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewSaverHandler creates a new SaverHandler.
func NewSaverHandler(engine *Engine, store saver.Store, publisher shared.EventPublisher) *SaverHandler {
	return &SaverHandler{
		engine:    engine,
		store:     store,
		publisher: publisher,
		logger:    engine.logger.With("handler", "saver"),
	}
}

// Apply repairs the latest break of a habit. Ineligible saves fail with a
// *shared.EligibilityError and leave inventory, break and streak untouched.
func (h *SaverHandler) Apply(ctx context.Context, cmd ApplySaverCommand) (*saver.Result, error) {
	if cmd.HabitID == "" {
		return nil, shared.ValidationError("saver", "Apply", "habit_id is required")
	}

	brk, err := h.store.LatestBreak(ctx, cmd.HabitID)
	if shared.IsNotFound(err) {
		return nil, shared.NewEligibilityError(cmd.HabitID, shared.ReasonNoBreak)
	}
	if err != nil {
		return nil, fmt.Errorf("saver: load break: %w", err)
	}

	now, _ := h.engine.Now()
	window := h.engine.config.SaverWindow

	var result saver.Result
	err = h.store.WithinSave(ctx, brk.ID, func(t saver.Target, b *saver.BreakEvent, inv *saver.Inventory) error {
		res, err := saver.Apply(t, b, inv, now, window)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if shared.IsEligibility(err) {
			h.logger.Info("streak save rejected", "habit_id", cmd.HabitID, "reason", err.Error())
			return nil, err
		}
		return nil, fmt.Errorf("saver: %w", err)
	}

	publish(h.publisher, h.logger, []shared.Event{
		shared.NewStreakSavedEvent(cmd.HabitID, result.BreakID, result.Restored, result.Remaining, now),
	})

	h.logger.Info("streak saved",
		"habit_id", cmd.HabitID,
		"break_date", result.BreakDate,
		"restored", result.Restored,
		"remaining", result.Remaining,
	)
	return &result, nil
}

// Grant adds savers to an inventory, creating it when missing.
func (h *SaverHandler) Grant(ctx context.Context, cmd GrantSaversCommand) (*saver.Inventory, error) {
	if cmd.OwnerID == "" {
		return nil, shared.ValidationError("saver", "Grant", "owner_id is required")
	}
	if cmd.Scope == "" {
		cmd.Scope = saver.ScopePersonal
	}
	if !cmd.Scope.IsValid() {
		return nil, shared.ValidationError("saver", "Grant", fmt.Sprintf("unknown scope %q", cmd.Scope))
	}

	inv, err := h.store.Inventory(ctx, cmd.OwnerID, cmd.Scope)
	if err != nil {
		return nil, fmt.Errorf("saver: load inventory: %w", err)
	}

	now, _ := h.engine.Now()
	if err := inv.Grant(cmd.Amount, now); err != nil {
		return nil, err
	}
	if err := h.store.SaveInventory(ctx, inv); err != nil {
		return nil, fmt.Errorf("saver: save inventory: %w", err)
	}
	return inv, nil
}
