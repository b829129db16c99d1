package model

import (
	"time"

	"github.com/google/uuid"
)

type TurnID string

// NewTurnID generates a new unique TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the append-only conversation log
type Turn struct {
	ID        TurnID
	Address   Address
	Role      Role
	Content   string
	CreatedAt time.Time
}

// NewTurnPair returns the inbound and reply turns of one processed message.
// The reply is stamped one microsecond later so that ordering by creation
// time stays stable on stores with coarse timestamps.
func NewTurnPair(addr Address, inbound, reply string, now time.Time) []*Turn {
	return []*Turn{
		{
			ID:        NewTurnID(),
			Address:   addr,
			Role:      RoleUser,
			Content:   inbound,
			CreatedAt: now,
		},
		{
			ID:        NewTurnID(),
			Address:   addr,
			Role:      RoleAssistant,
			Content:   reply,
			CreatedAt: now.Add(time.Microsecond),
		},
	}
}
