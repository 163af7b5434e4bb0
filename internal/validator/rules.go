package validator

import (
	"log"

	"agency_backend/internal/models/chat"
	"agency_backend/internal/storage"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует кастомные правила чата
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// ошибка конфигурации, приложение не должно стартовать
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// 'chat-emoji': реакция из фиксированного набора
	mustRegister("chat-emoji", validateChatEmoji)

	// 'storage-key': ключ объекта без выхода за пределы хранилища
	mustRegister("storage-key", validateStorageKey)
}

func validateChatEmoji(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // пустое значение проверяет 'required'
	}
	return chat.IsAllowedEmoji(value)
}

func validateStorageKey(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := storage.CleanKey(value)
	return err == nil
}
