package dispatcher

import "github.com/google/uuid"

func newTurnID() string { return uuid.NewString() }
