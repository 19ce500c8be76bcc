package types

import "github.com/google/uuid"

type (
	RequestID string
	CycleID   string
)

func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

func NewCycleID() CycleID {
	return CycleID(uuid.NewString())
}

func (x CycleID) String() string {
	return string(x)
}
