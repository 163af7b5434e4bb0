package apperrors

import (
	"net/http"
)

// =========================================================================
// Таксономия ошибок чата
// =========================================================================

// AuthorizationError - пользователь не участник чата или не его создатель (403).
func AuthorizationError(domain, message string) *AppError {
	return New(CodeForbidden, domain, message, http.StatusForbidden)
}

// NotFoundError - чат, сообщение или маппинг ответа не найдены либо истекли (404).
func NotFoundError(domain, message string) *AppError {
	return New(CodeNotFound, domain, message, http.StatusNotFound)
}

// InvalidInput - пустой контент, недопустимый эмодзи, битый токен (400).
func InvalidInput(domain, message string) *AppError {
	return New(CodeValidationFailed, domain, message, http.StatusBadRequest)
}

// ExternalDeliveryError - сбой push/email/бота. Только логируется, наружу не уходит.
func ExternalDeliveryError(channel string, err error) *AppError {
	return Wrap(err, CodeExternalServiceError, "notify", "Delivery via "+channel+" failed", http.StatusBadGateway)
}

// ErrConflict - общая фабрика для конфликтов (409)
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// ErrInvalidOperation - фабрика для невалидных операций (400)
func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

// --- Chat ---

var ErrChatNotFound = NotFoundError("chat", "Chat not found")

var ErrChatAccessDenied = AuthorizationError("chat", "You are not a participant of this chat")

var ErrNotChatCreator = AuthorizationError("chat", "Only the chat creator can do this")

var ErrMessageNotFound = NotFoundError("chat", "Message not found")

var ErrParticipantNotFound = NotFoundError("chat", "Participant not found in this chat")

var ErrUserNotFound = NotFoundError("user", "User not found or inactive")

var ErrEmptyMessage = InvalidInput("chat", "Message must have text or at least one attachment")

var ErrMessageTooLong = InvalidInput("chat", "Message is too long")

var ErrEmojiNotAllowed = InvalidInput("chat", "This reaction is not allowed")

var ErrNotGroupChat = ErrInvalidOperation("chat", "Participants can only be changed in group chats")

var ErrParticipantExists = New(CodeConflict, "chat", "User is already a participant", http.StatusConflict)

// --- Uploads ---

var ErrFileTooLarge = New(CodeLimitExceeded, "validation", "File size exceeds the allowed limit", http.StatusRequestEntityTooLarge)

var ErrInvalidFileType = New(CodeValidationFailed, "validation", "The provided file type is not allowed", http.StatusUnsupportedMediaType)

var ErrForeignAttachment = InvalidInput("chat", "Attachment does not belong to this chat")

// --- Reply bridge ---

var ErrReplyMappingNotFound = NotFoundError("reply_bridge", "Reply target not found or expired")

// --- Auth ---

var ErrInvalidToken = New(CodeInvalidToken, "auth", "Invalid or expired token", http.StatusUnauthorized)

var ErrUserInactive = New(CodeForbidden, "auth", "Your account is inactive", http.StatusForbidden)
