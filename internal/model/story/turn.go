package story

import "time"

// TurnKind records how a turn was produced.
type TurnKind string

const (
	TurnOpener       TurnKind = "opener"
	TurnContinuation TurnKind = "continuation"
	TurnBranch       TurnKind = "branch"
)

// Turn is one user input plus the generated continuation. Turns never change once appended.
type Turn struct {
	Number       int       `json:"number"`
	Kind         TurnKind  `json:"kind"`
	UserInput    string    `json:"userInput"`
	Continuation string    `json:"continuation"`
	CreatedAt    time.Time `json:"createdAt"`
}
