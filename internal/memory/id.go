package memory

import "github.com/google/uuid"

func newSessionID() string { return uuid.NewString() }

func newEventID() string { return uuid.NewString() }
