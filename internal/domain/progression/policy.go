// Package progression содержит движок тиров и XP.
// Одна настраиваемая политика обслуживает обе области: привычки (тир по серии)
// и группы (тир по уровню), чтобы таблицы не расходились.
package progression

import (
	"fmt"
	"sort"

	"github.com/alem-hub/streakhub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE & TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Scope - область применения политики.
type Scope string

const (
	// ScopeHabit - тир определяется серией привычки.
	ScopeHabit Scope = "habit"
	// ScopeGroup - тир определяется уровнем группы.
	ScopeGroup Scope = "group"
)

// Tier - ранг с нижней границей и множителем XP.
type Tier struct {
	Name       string  `json:"name"`
	Floor      int     `json:"floor"`
	Multiplier float64 `json:"multiplier"`
}

// TierStatus - результат поиска тира для значения.
type TierStatus struct {
	Tier Tier

	// Next - следующий тир; nil для верхнего тира.
	Next *Tier

	// Value - серия или уровень, по которому считали.
	Value int

	// ProgressToNext - прогресс до следующей границы в процентах, 0..100.
	ProgressToNext float64
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy - настраиваемая политика тиров и XP для одной области.
type Policy struct {
	Scope Scope

	// Tiers - упорядоченные по возрастанию Floor ранги.
	Tiers []Tier

	// TopCeiling - граница, после которой прогресс верхнего тира равен 100%.
	TopCeiling int

	// BaseXPPerTask - XP за каждую выполненную задачу.
	BaseXPPerTask int

	// BinaryXP - XP за выполненный день привычки без задач.
	BinaryXP int

	// BonusEvery / BonusXP - бонус за серию: floor(streak / BonusEvery) * BonusXP,
	// только если streak > BonusEvery.
	BonusEvery int
	BonusXP    int
}

// DefaultHabitPolicy возвращает политику привычек: тиры по серии.
func DefaultHabitPolicy() Policy {
	return Policy{
		Scope: ScopeHabit,
		Tiers: []Tier{
			{Name: "Bronze", Floor: 0, Multiplier: 1.0},
			{Name: "Silver", Floor: 7, Multiplier: 1.1},
			{Name: "Gold", Floor: 30, Multiplier: 1.25},
			{Name: "Platinum", Floor: 90, Multiplier: 1.5},
			{Name: "Diamond", Floor: 180, Multiplier: 2.0},
		},
		TopCeiling:    365,
		BaseXPPerTask: 10,
		BinaryXP:      20,
		BonusEvery:    7,
		BonusXP:       5,
	}
}

// DefaultGroupPolicy возвращает политику групп: тиры по уровню.
func DefaultGroupPolicy() Policy {
	return Policy{
		Scope: ScopeGroup,
		Tiers: []Tier{
			{Name: "Spark", Floor: 1, Multiplier: 1.0},
			{Name: "Flame", Floor: 5, Multiplier: 1.1},
			{Name: "Blaze", Floor: 10, Multiplier: 1.2},
			{Name: "Inferno", Floor: 20, Multiplier: 1.35},
			{Name: "Nova", Floor: 35, Multiplier: 1.5},
		},
		TopCeiling:    50,
		BaseXPPerTask: 10,
		BinaryXP:      20,
		BonusEvery:    7,
		BonusXP:       5,
	}
}

// Validate проверяет политику: тиры непустые, строго возрастают, множители положительные.
func (p Policy) Validate() error {
	if len(p.Tiers) == 0 {
		return shared.NewDomainError("progression", "Validate", shared.ErrEmptyValue, "policy has no tiers")
	}
	for i, t := range p.Tiers {
		if t.Multiplier <= 0 {
			return shared.NewDomainError("progression", "Validate", shared.ErrValueOutOfRange,
				fmt.Sprintf("tier %s: multiplier must be positive", t.Name))
		}
		if i > 0 && t.Floor <= p.Tiers[i-1].Floor {
			return shared.NewDomainError("progression", "Validate", shared.ErrValueOutOfRange,
				fmt.Sprintf("tier %s: floors must increase", t.Name))
		}
	}
	if p.TopCeiling <= p.Tiers[len(p.Tiers)-1].Floor {
		return shared.NewDomainError("progression", "Validate", shared.ErrValueOutOfRange,
			"top ceiling must exceed the last tier floor")
	}
	return nil
}

// TierFor находит старший тир, чья граница не больше value.
// Значение ниже первой границы получает первый тир.
func (p Policy) TierFor(value int) TierStatus {
	if len(p.Tiers) == 0 {
		return TierStatus{Tier: Tier{Multiplier: 1}, Value: value}
	}

	idx := sort.Search(len(p.Tiers), func(i int) bool { return p.Tiers[i].Floor > value }) - 1
	if idx < 0 {
		idx = 0
	}

	st := TierStatus{Tier: p.Tiers[idx], Value: value}
	nextFloor := p.TopCeiling
	if idx+1 < len(p.Tiers) {
		next := p.Tiers[idx+1]
		st.Next = &next
		nextFloor = next.Floor
	}

	span := nextFloor - st.Tier.Floor
	if span <= 0 {
		st.ProgressToNext = 100
		return st
	}
	st.ProgressToNext = clamp01(float64(value-st.Tier.Floor)/float64(span)) * 100
	return st
}

// Multiplier возвращает множитель XP для значения.
func (p Policy) Multiplier(value int) float64 {
	return p.TierFor(value).Tier.Multiplier
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Policies - набор политик, выбираемых по области.
type Policies map[Scope]Policy

// DefaultPolicies возвращает политики по умолчанию для обеих областей.
func DefaultPolicies() Policies {
	return Policies{
		ScopeHabit: DefaultHabitPolicy(),
		ScopeGroup: DefaultGroupPolicy(),
	}
}

// For возвращает политику области; неизвестная область получает политику привычек.
func (ps Policies) For(scope Scope) Policy {
	if p, ok := ps[scope]; ok {
		return p
	}
	return DefaultHabitPolicy()
}
