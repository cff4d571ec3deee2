package protocol

// EntryKind - вид записи журнала
type EntryKind string

const (
	EntryKindMessage      EntryKind = "message"
	EntryKindNotification EntryKind = "notification"
)

// ChatEntry - запись журнала сообщений комнаты, как ее видит клиент
type ChatEntry struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	TimestampMs int64     `json:"timestampMs"`
	IsLocal     bool      `json:"isLocal"`
	Kind        EntryKind `json:"kind"`
}

func (e ChatEntry) IsNotification() bool {
	return e.Kind == EntryKindNotification
}

// RoomIdentity - идентификатор комнаты из объекта звонка
type RoomIdentity struct {
	RoomID string `json:"roomId"`
}

// ParticipantIdentity - локальный участник звонка
type ParticipantIdentity struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName,omitempty"`
}

// Name возвращает отображаемое имя, по умолчанию - ID участника
func (p ParticipantIdentity) Name() string {
	if p.DisplayName == "" {
		return p.ParticipantID
	}
	return p.DisplayName
}

// ReadyBinding - пара (комната, участник), при которой разрешено соединение с релеем
type ReadyBinding struct {
	Room        RoomIdentity
	Participant ParticipantIdentity
}

// NewReadyBinding возвращает nil, пока не известны обе стороны
func NewReadyBinding(roomID string, participant *ParticipantIdentity) *ReadyBinding {
	if roomID == "" || participant == nil || participant.ParticipantID == "" {
		return nil
	}
	return &ReadyBinding{
		Room: RoomIdentity{RoomID: roomID},
		Participant: ParticipantIdentity{
			ParticipantID: participant.ParticipantID,
			DisplayName:   participant.Name(),
		},
	}
}

func (b ReadyBinding) Membership() MembershipPayload {
	return MembershipPayload{
		RoomID:        b.Room.RoomID,
		ParticipantID: b.Participant.ParticipantID,
		DisplayName:   b.Participant.Name(),
	}
}

// SameBinding сравнивает привязки по значению; две nil равны
func SameBinding(a, b *ReadyBinding) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
