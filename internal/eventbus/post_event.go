package eventbus

import "time"

type PostEventType string

const (
	PostEventSaved   PostEventType = "Saved"
	PostEventUpdated PostEventType = "Updated"
)

type PostEvent struct {
	Type     PostEventType
	PostID   string
	Title    string
	Topic    string
	Keywords []string // Saved 事件才有
	At       time.Time
}

func (e PostEvent) EventType() PostEventType { return e.Type }

type PostEventHandler = Handler[PostEvent]
type PostEventBus = Bus[PostEventType, PostEvent]

func NewPostEventBus() *PostEventBus {
	return NewBus[PostEventType, PostEvent]()
}
