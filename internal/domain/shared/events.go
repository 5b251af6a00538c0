// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Presentation and notification layers subscribe to these.
const (
	// Progress events
	EventXPAwarded        EventType = "progress.xp_awarded"
	EventTierChanged      EventType = "progress.tier_changed"
	EventMilestoneReached EventType = "progress.milestone_reached"
	EventStreakUpdated    EventType = "progress.streak_updated"
	EventStreakBroken     EventType = "progress.streak_broken"

	// Saver events
	EventStreakSaved EventType = "saver.streak_saved"

	// Holiday events
	EventHolidayStarted EventType = "holiday.started"
	EventHolidayEnded   EventType = "holiday.ended"

	// Group events
	EventGroupLevelUp EventType = "group.level_up"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the caller's clock reading.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted when a qualifying action earns XP.
type XPAwardedEvent struct {
	BaseEvent
	HabitID    string  `json:"habit_id"`
	Date       string  `json:"date"`
	Amount     int     `json:"amount"`
	BaseXP     int     `json:"base_xp"`
	Bonus      int     `json:"bonus"`
	Multiplier float64 `json:"multiplier"`
	Tier       string  `json:"tier"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":   e.HabitID,
		"date":       e.Date,
		"amount":     e.Amount,
		"base_xp":    e.BaseXP,
		"bonus":      e.Bonus,
		"multiplier": e.Multiplier,
		"tier":       e.Tier,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(habitID, date string, amount, baseXP, bonus int, multiplier float64, tier string, at time.Time) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent:  NewBaseEvent(EventXPAwarded, habitID, at),
		HabitID:    habitID,
		Date:       date,
		Amount:     amount,
		BaseXP:     baseXP,
		Bonus:      bonus,
		Multiplier: multiplier,
		Tier:       tier,
	}
}

// TierChangedEvent is emitted when a habit or group moves to another tier.
type TierChangedEvent struct {
	BaseEvent
	Scope   string `json:"scope"` // "habit" or "group"
	OldTier string `json:"old_tier"`
	NewTier string `json:"new_tier"`
	Value   int    `json:"value"` // streak or level
}

// Payload implements Event interface.
func (e TierChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"scope":    e.Scope,
		"old_tier": e.OldTier,
		"new_tier": e.NewTier,
		"value":    e.Value,
	}
}

// NewTierChangedEvent creates a new TierChangedEvent.
func NewTierChangedEvent(aggregateID, scope, oldTier, newTier string, value int, at time.Time) TierChangedEvent {
	return TierChangedEvent{
		BaseEvent: NewBaseEvent(EventTierChanged, aggregateID, at),
		Scope:     scope,
		OldTier:   oldTier,
		NewTier:   newTier,
		Value:     value,
	}
}

// MilestoneReachedEvent is emitted when a streak crosses a configured milestone.
type MilestoneReachedEvent struct {
	BaseEvent
	HabitID   string `json:"habit_id"`
	Milestone int    `json:"milestone"`
	Streak    int    `json:"streak"`
}

// Payload implements Event interface.
func (e MilestoneReachedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":  e.HabitID,
		"milestone": e.Milestone,
		"streak":    e.Streak,
	}
}

// NewMilestoneReachedEvent creates a new MilestoneReachedEvent.
func NewMilestoneReachedEvent(habitID string, milestone, streak int, at time.Time) MilestoneReachedEvent {
	return MilestoneReachedEvent{
		BaseEvent: NewBaseEvent(EventMilestoneReached, habitID, at),
		HabitID:   habitID,
		Milestone: milestone,
		Streak:    streak,
	}
}

// StreakUpdatedEvent is emitted whenever a recomputation changes a habit's streak.
type StreakUpdatedEvent struct {
	BaseEvent
	HabitID        string `json:"habit_id"`
	PreviousStreak int    `json:"previous_streak"`
	CurrentStreak  int    `json:"current_streak"`
	BestStreak     int    `json:"best_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":        e.HabitID,
		"previous_streak": e.PreviousStreak,
		"current_streak":  e.CurrentStreak,
		"best_streak":     e.BestStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(habitID string, previous, current, best int, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventStreakUpdated, habitID, at),
		HabitID:        habitID,
		PreviousStreak: previous,
		CurrentStreak:  current,
		BestStreak:     best,
	}
}

// StreakBrokenEvent is emitted the first time a break is detected.
type StreakBrokenEvent struct {
	BaseEvent
	HabitID        string `json:"habit_id"`
	BreakID        string `json:"break_id"`
	BreakDate      string `json:"break_date"`
	PreviousStreak int    `json:"previous_streak"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":        e.HabitID,
		"break_id":        e.BreakID,
		"break_date":      e.BreakDate,
		"previous_streak": e.PreviousStreak,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(habitID, breakID, breakDate string, previousStreak int, at time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, habitID, at),
		HabitID:        habitID,
		BreakID:        breakID,
		BreakDate:      breakDate,
		PreviousStreak: previousStreak,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Saver Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakSavedEvent is emitted after a successful streak saver transaction.
type StreakSavedEvent struct {
	BaseEvent
	HabitID         string `json:"habit_id"`
	BreakID         string `json:"break_id"`
	RestoredStreak  int    `json:"restored_streak"`
	RemainingSavers int    `json:"remaining_savers"`
}

// Payload implements Event interface.
func (e StreakSavedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"habit_id":         e.HabitID,
		"break_id":         e.BreakID,
		"restored_streak":  e.RestoredStreak,
		"remaining_savers": e.RemainingSavers,
	}
}

// NewStreakSavedEvent creates a new StreakSavedEvent.
func NewStreakSavedEvent(habitID, breakID string, restored, remaining int, at time.Time) StreakSavedEvent {
	return StreakSavedEvent{
		BaseEvent:       NewBaseEvent(EventStreakSaved, habitID, at),
		HabitID:         habitID,
		BreakID:         breakID,
		RestoredStreak:  restored,
		RemainingSavers: remaining,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Holiday Events
// ═══════════════════════════════════════════════════════════════════════════

// HolidayEvent is emitted when a holiday period starts or ends.
type HolidayEvent struct {
	BaseEvent
	OwnerID        string   `json:"owner_id"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Cancelled      bool     `json:"cancelled"`
	AffectedHabits []string `json:"affected_habits,omitempty"`
}

// Payload implements Event interface.
func (e HolidayEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":        e.OwnerID,
		"start_date":      e.StartDate,
		"end_date":        e.EndDate,
		"cancelled":       e.Cancelled,
		"affected_habits": e.AffectedHabits,
	}
}

// NewHolidayStartedEvent creates a holiday.started event.
func NewHolidayStartedEvent(holidayID, ownerID, start, end string, at time.Time) HolidayEvent {
	return HolidayEvent{
		BaseEvent: NewBaseEvent(EventHolidayStarted, holidayID, at),
		OwnerID:   ownerID,
		StartDate: start,
		EndDate:   end,
	}
}

// NewHolidayEndedEvent creates a holiday.ended event.
func NewHolidayEndedEvent(holidayID, ownerID, start, end string, cancelled bool, affected []string, at time.Time) HolidayEvent {
	return HolidayEvent{
		BaseEvent:      NewBaseEvent(EventHolidayEnded, holidayID, at),
		OwnerID:        ownerID,
		StartDate:      start,
		EndDate:        end,
		Cancelled:      cancelled,
		AffectedHabits: affected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Group Events
// ═══════════════════════════════════════════════════════════════════════════

// GroupLevelUpEvent is emitted when accumulated group XP crosses a level boundary.
type GroupLevelUpEvent struct {
	BaseEvent
	GroupID  string `json:"group_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e GroupLevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":  e.GroupID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewGroupLevelUpEvent creates a new GroupLevelUpEvent.
func NewGroupLevelUpEvent(groupID string, oldLevel, newLevel, totalXP int, at time.Time) GroupLevelUpEvent {
	return GroupLevelUpEvent{
		BaseEvent: NewBaseEvent(EventGroupLevelUp, groupID, at),
		GroupID:   groupID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
