package domain

// Payload schemas, one per broker topic.

type Ref struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type SubscriptionEvent struct {
	UserID       string `json:"userId" validate:"required,numeric"`
	Game         Ref    `json:"game" validate:"required"`
	App          Ref    `json:"app" validate:"required"`
	IsSubscribed bool   `json:"isSubscribed"`
}

type PatchNoteEvent struct {
	App        Ref      `json:"app" validate:"required"`
	Game       Ref      `json:"game" validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required,numeric"`
}

type UpdateStatusEvent struct {
	ID      string `json:"id" validate:"required"`
	UserID  string `json:"userId"`
	GameID  string `json:"gameId"`
	AppID   string `json:"appId"`
	Status  string `json:"status" validate:"required,oneof=PENDING PROCESSING COMPLETED FAILED"`
	Message string `json:"message,omitempty"`
}

// UpdateRequestedEvent is published when a user asks for an update to run.
type UpdateRequestedEvent struct {
	ID            string `json:"id"`
	AppID         string `json:"appId"`
	GameID        string `json:"gameId"`
	UserID        string `json:"userId"`
	Source        string `json:"source"`
	UpdateCommand string `json:"updateCommand"`
}

// Interaction is a button press delivered by the bot platform.
type Interaction struct {
	CallbackID string
	Token      string
	FromID     int64
	ChatID     int64
	MessageID  int64
}
