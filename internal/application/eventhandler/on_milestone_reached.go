// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они подписываются на шину событий
// и выдают награды, не вмешиваясь в саму запись прогресса.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// SaverGranter пополняет инвентарь спасителей. Реализуется command.SaverHandler.
type SaverGranter interface {
	Grant(ctx context.Context, cmd command.GrantSaversCommand) (*saver.Inventory, error)
}

// HabitFinder загружает привычку по ID.
type HabitFinder interface {
	FindByID(ctx context.Context, id string) (*habit.Habit, error)
}

// ═══════════════════════════════════════════════════════════════════════════
// ON MILESTONE REACHED HANDLER
// Выдаёт личный спаситель серии за достижение рубежа серии.
// Это основной способ "получить ещё" после ответа "no savers available".
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneRewardConfig содержит конфигурацию награды.
type MilestoneRewardConfig struct {
	// Milestones - рубежи, за которые выдаётся награда (nil - за любой).
	Milestones []int

	// SaversPerMilestone - сколько спасителей выдать за рубеж.
	SaversPerMilestone int
}

// DefaultMilestoneRewardConfig возвращает конфигурацию по умолчанию.
func DefaultMilestoneRewardConfig() MilestoneRewardConfig {
	return MilestoneRewardConfig{
		Milestones:         []int{30, 100, 365},
		SaversPerMilestone: 1,
	}
}

// OnMilestoneReachedHandler обрабатывает MilestoneReachedEvent.
type OnMilestoneReachedHandler struct {
	habits  HabitFinder
	granter SaverGranter
	config  MilestoneRewardConfig
	logger  *slog.Logger
}

// NewOnMilestoneReachedHandler создаёт новый обработчик.
func NewOnMilestoneReachedHandler(habits HabitFinder, granter SaverGranter, logger *slog.Logger, config MilestoneRewardConfig) *OnMilestoneReachedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SaversPerMilestone <= 0 {
		config.SaversPerMilestone = 1
	}
	return &OnMilestoneReachedHandler{
		habits:  habits,
		granter: granter,
		config:  config,
		logger:  logger.With("handler", "on_milestone_reached"),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnMilestoneReachedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	e, ok := event.(shared.MilestoneReachedEvent)
	if !ok {
		h.logger.Warn("received non-MilestoneReachedEvent", "event_type", event.EventType())
		return nil
	}
	if h.config.Milestones != nil && !slices.Contains(h.config.Milestones, e.Milestone) {
		return nil
	}

	hb, err := h.habits.FindByID(ctx, e.HabitID)
	if err != nil {
		return fmt.Errorf("find habit: %w", err)
	}

	inv, err := h.granter.Grant(ctx, command.GrantSaversCommand{
		OwnerID: hb.OwnerID,
		Scope:   saver.ScopePersonal,
		Amount:  h.config.SaversPerMilestone,
	})
	if err != nil {
		h.logger.Error("milestone reward failed", "habit_id", e.HabitID, "milestone", e.Milestone, "error", err)
		return fmt.Errorf("grant savers: %w", err)
	}

	h.logger.Info("milestone rewarded",
		"habit_id", e.HabitID,
		"owner_id", hb.OwnerID,
		"milestone", e.Milestone,
		"available", inv.Available,
	)
	return nil
}
