package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/domain/saver"
	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON GROUP LEVEL UP HANDLER
// Пополняет общий (командный) инвентарь группы при повышении уровня.
// ═══════════════════════════════════════════════════════════════════════════

// GroupLevelRewardConfig содержит конфигурацию награды.
type GroupLevelRewardConfig struct {
	// SaversPerLevel - спасителей за каждый пройденный уровень.
	SaversPerLevel int

	// MaxPerEvent ограничивает награду за одно событие (0 - без ограничения).
	MaxPerEvent int
}

// DefaultGroupLevelRewardConfig возвращает конфигурацию по умолчанию.
func DefaultGroupLevelRewardConfig() GroupLevelRewardConfig {
	return GroupLevelRewardConfig{
		SaversPerLevel: 1,
		MaxPerEvent:    3,
	}
}

// OnGroupLevelUpHandler обрабатывает GroupLevelUpEvent.
type OnGroupLevelUpHandler struct {
	granter SaverGranter
	config  GroupLevelRewardConfig
	logger  *slog.Logger
}

// NewOnGroupLevelUpHandler создаёт новый обработчик.
func NewOnGroupLevelUpHandler(granter SaverGranter, logger *slog.Logger, config GroupLevelRewardConfig) *OnGroupLevelUpHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SaversPerLevel <= 0 {
		config.SaversPerLevel = 1
	}
	return &OnGroupLevelUpHandler{
		granter: granter,
		config:  config,
		logger:  logger.With("handler", "on_group_level_up"),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnGroupLevelUpHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.GroupLevelUpEvent)
	if !ok {
		h.logger.Warn("received non-GroupLevelUpEvent", "event_type", event.EventType())
		return nil
	}

	levels := e.NewLevel - e.OldLevel
	if levels <= 0 {
		return nil
	}
	amount := levels * h.config.SaversPerLevel
	if h.config.MaxPerEvent > 0 && amount > h.config.MaxPerEvent {
		amount = h.config.MaxPerEvent
	}

	inv, err := h.granter.Grant(context.Background(), command.GrantSaversCommand{
		OwnerID: e.GroupID,
		Scope:   saver.ScopeTeam,
		Amount:  amount,
	})
	if err != nil {
		h.logger.Error("level reward failed", "group_id", e.GroupID, "error", err)
		return fmt.Errorf("grant team savers: %w", err)
	}

	h.logger.Info("group level rewarded",
		"group_id", e.GroupID,
		"old_level", e.OldLevel,
		"new_level", e.NewLevel,
		"available", inv.Available,
	)
	return nil
}
