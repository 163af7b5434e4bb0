package config

import "strings"

// AttachmentPolicy - ограничения на вложения в сообщениях чата
type AttachmentPolicy struct {
	MaxSize      int64
	AllowedTypes map[string]bool
}

// Attachments собирает политику вложений из секции upload
func (c *Config) Attachments() AttachmentPolicy {
	allowed := make(map[string]bool, len(c.Upload.AllowedTypes))
	for _, t := range c.Upload.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return AttachmentPolicy{
		MaxSize:      c.Upload.MaxSize,
		AllowedTypes: allowed,
	}
}

// Allows проверяет MIME-тип (параметры вроде "; charset=utf-8" отбрасываются).
// Пустой белый список разрешает все.
func (p AttachmentPolicy) Allows(mimeType string) bool {
	if len(p.AllowedTypes) == 0 {
		return true
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	return p.AllowedTypes[mt]
}
