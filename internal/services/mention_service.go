package services

import (
	"context"
	"regexp"
	"strings"

	"agency_backend/internal/logger"
	"agency_backend/internal/models"
	"agency_backend/internal/models/chat"
	"agency_backend/internal/repositories"
	"agency_backend/internal/services/dto"
	"agency_backend/pkg/apperrors"

	"gorm.io/gorm"
)

// "@" в начале строки или после пробела/пунктуации, затем одно или два слова имени
var mentionPattern = regexp.MustCompile(`(?:^|[\s\p{P}])@(\p{L}[\p{L}\p{M}'-]*)(?:[ \t]+(\p{L}[\p{L}\p{M}'-]*))?`)

var leadingMentionPattern = regexp.MustCompile(`^\s*@(\p{L}[\p{L}\p{M}'-]*)(?:[ \t]+(\p{L}[\p{L}\p{M}'-]*))?`)

// MentionToken - разобранное упоминание. Last может быть пустым.
type MentionToken struct {
	First string
	Last  string
}

// Candidates - варианты сопоставления в порядке приоритета: "имя фамилия", затем "имя"
func (t MentionToken) Candidates() []string {
	if t.Last == "" {
		return []string{t.First}
	}
	return []string{t.First + " " + t.Last, t.First}
}

// LeadingMatch - результат разбора ответа, начинающегося с "@имя"
type LeadingMatch struct {
	User *models.User
	Rest string
}

type MentionService interface {
	Resolve(ctx context.Context, db *gorm.DB, content, authorID string, scope []string) ([]models.User, error)
	RecordMentions(ctx context.Context, db *gorm.DB, sourceType, sourceID string, userIDs []string) ([]string, error)
	MarkNotified(ctx context.Context, db *gorm.DB, sourceType, sourceID, userID string) error
	ProcessComment(ctx context.Context, db *gorm.DB, authorID string, req *dto.CommentMentionRequest) (*dto.CommentMentionResponse, error)
	MatchLeading(ctx context.Context, db *gorm.DB, text string, scope []string) (*LeadingMatch, error)
}

type mentionService struct {
	mentionRepo repositories.MentionRepository
	userRepo    repositories.UserRepository
	notifier    NotificationService
}

func NewMentionService(
	mentionRepo repositories.MentionRepository,
	userRepo repositories.UserRepository,
	notifier NotificationService,
) MentionService {
	return &mentionService{
		mentionRepo: mentionRepo,
		userRepo:    userRepo,
		notifier:    notifier,
	}
}

// ExtractTokens находит упоминания в тексте. Регистр понижается, дубли убираются.
func ExtractTokens(content string) []MentionToken {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[MentionToken]bool, len(matches))
	tokens := make([]MentionToken, 0, len(matches))
	for _, m := range matches {
		token := MentionToken{First: strings.ToLower(m[1]), Last: strings.ToLower(m[2])}
		if seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}

// Resolve сопоставляет упоминания с активными пользователями.
// scope == nil - весь каталог, иначе только перечисленные id (участники чата).
// Сначала полное имя, потом только имя; неоднозначные и ненайденные отбрасываются.
// Автор в результат не попадает. Побочных эффектов нет.
func (s *mentionService) Resolve(ctx context.Context, db *gorm.DB, content, authorID string, scope []string) ([]models.User, error) {
	tokens := ExtractTokens(content)
	if len(tokens) == 0 {
		return nil, nil
	}

	var resolved []models.User
	seen := make(map[string]bool)
	for _, token := range tokens {
		user, _, err := s.matchToken(db, token, authorID, scope)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if user == nil || seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		resolved = append(resolved, *user)
	}
	return resolved, nil
}

// matchToken возвращает пользователя и сколько слов токена ушло на совпадение (1 или 2)
func (s *mentionService) matchToken(db *gorm.DB, token MentionToken, excludeID string, scope []string) (*models.User, int, error) {
	users, err := s.userRepo.FindActiveByFirstName(db, token.First, scope)
	if err != nil {
		return nil, 0, err
	}

	candidates := users[:0]
	for _, u := range users {
		if u.ID != excludeID {
			candidates = append(candidates, u)
		}
	}

	if token.Last != "" {
		var full []models.User
		for _, u := range candidates {
			if strings.ToLower(u.LastName) == token.Last {
				full = append(full, u)
			}
		}
		switch len(full) {
		case 1:
			return &full[0], 2, nil
		case 0:
			// второе слово не фамилия, пробуем только имя
		default:
			return nil, 0, nil
		}
	}

	if len(candidates) == 1 {
		return &candidates[0], 1, nil
	}
	return nil, 0, nil
}

// RecordMentions сохраняет упоминания и возвращает только созданные этим вызовом
func (s *mentionService) RecordMentions(ctx context.Context, db *gorm.DB, sourceType, sourceID string, userIDs []string) ([]string, error) {
	var created []string
	for _, userID := range userIDs {
		ok, err := s.mentionRepo.CreateIfAbsent(db, sourceType, sourceID, userID)
		if err != nil {
			return created, apperrors.InternalError(err)
		}
		if ok {
			created = append(created, userID)
		}
	}
	return created, nil
}

func (s *mentionService) MarkNotified(ctx context.Context, db *gorm.DB, sourceType, sourceID, userID string) error {
	if err := s.mentionRepo.MarkNotified(db, sourceType, sourceID, userID); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

// ProcessComment - упоминания в комментариях к задачам, поиск по всему каталогу
func (s *mentionService) ProcessComment(ctx context.Context, db *gorm.DB, authorID string, req *dto.CommentMentionRequest) (*dto.CommentMentionResponse, error) {
	author, err := s.userRepo.FindActiveByID(db, authorID)
	if err != nil {
		return nil, handleChatError(err)
	}

	users, err := s.Resolve(ctx, db, req.Content, authorID, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	created, err := s.RecordMentions(ctx, db, chat.MentionSourceComment, req.CommentID, ids)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyAll(ctx, db, created, func(string) Notification {
		return Notification{
			EventType: models.EventMention,
			ActorID:   author.ID,
			ActorName: author.DisplayName(),
			ChatName:  req.TaskTitle,
			Preview:   req.Content,
			Link:      req.Link,
		}
	})
	for _, userID := range created {
		if err := s.MarkNotified(ctx, db, chat.MentionSourceComment, req.CommentID, userID); err != nil {
			logger.CtxWithError(ctx, "Failed to mark mention as notified", err, "comment_id", req.CommentID, "user_id", userID)
		}
	}

	return &dto.CommentMentionResponse{MentionedUserIDs: created}, nil
}

// MatchLeading разбирает "@имя [фамилия] текст". nil, если текст не начинается
// с упоминания или имя не удалось однозначно сопоставить.
func (s *mentionService) MatchLeading(ctx context.Context, db *gorm.DB, text string, scope []string) (*LeadingMatch, error) {
	loc := leadingMentionPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, nil
	}

	token := MentionToken{First: strings.ToLower(text[loc[2]:loc[3]])}
	if loc[4] >= 0 {
		token.Last = strings.ToLower(text[loc[4]:loc[5]])
	}

	user, words, err := s.matchToken(db, token, "", scope)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if user == nil {
		return nil, nil
	}

	end := loc[3]
	if words == 2 {
		end = loc[5]
	}
	return &LeadingMatch{User: user, Rest: strings.TrimSpace(text[end:])}, nil
}
