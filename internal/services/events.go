package services

// Серверные события шлюза
const (
	EventMessageNew         = "message:new"
	EventMessageRead        = "message:read"
	EventReactionUpdated    = "reaction:updated"
	EventChatNew            = "chat:new"
	EventParticipantAdded   = "chat:participant-added"
	EventParticipantRemoved = "chat:participant-removed"
	EventChatRemoved        = "chat:removed"
	EventTypingStart        = "typing:start"
	EventTypingStop         = "typing:stop"
)

// Broadcaster доставляет события подключенным клиентам.
// Реализация - ws.Hub; отправка не блокирует вызывающего.
type Broadcaster interface {
	// ToChat - всем соединениям в комнате чата
	ToChat(chatID, event string, data interface{})
	// ToUser - всем соединениям пользователя (личная комната)
	ToUser(userID, event string, data interface{})
	// Fanout - объединение комнаты чата и личных комнат userIDs, каждому соединению один раз
	Fanout(chatID string, userIDs []string, event string, data interface{})
	// EvictFromChat выводит соединения пользователя из комнаты чата
	EvictFromChat(chatID, userID string)
}

// PresenceChecker - кто сейчас онлайн
type PresenceChecker interface {
	IsOnline(userID string) bool
}
