package app

import "loteria/internal/domain"

// Intent is a request from the presentation layer to the match authority.
// It is implemented only by the intent types in this file.
type Intent interface {
	isIntent()
}

// JoinIntent announces (or changes) the sender's display name.
type JoinIntent struct {
	Name string
}

// StartIntent deals a new match. A nil TargetWin keeps the current one.
type StartIntent struct {
	TargetWin *domain.WinCondition
}

type MarkIntent struct {
	PlayerID string
	CardID   int
}

// ClaimIntent asserts a win. A nil Condition means the match target.
type ClaimIntent struct {
	PlayerID  string
	Condition *domain.WinCondition
}

func (JoinIntent) isIntent()  {}
func (StartIntent) isIntent() {}
func (MarkIntent) isIntent()  {}
func (ClaimIntent) isIntent() {}
