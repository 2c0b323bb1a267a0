package prompt

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/domain"
)

// NewRatingPromptData lists every persona in catalog order so the same idea
// always yields the same prompt.
func NewRatingPromptData(idea string, maxPersonas int, personas []*domain.Persona, attachments []AttachmentEntry) RatingPromptData {
	experts := make([]ExpertEntry, 0, len(personas))
	for i, p := range personas {
		experts = append(experts, ExpertEntry{
			Number:    i + 1,
			ID:        p.ID,
			Name:      p.Name,
			Industry:  p.Industry,
			Expertise: p.Expertise,
			Location:  p.Location,
		})
	}
	return RatingPromptData{
		Idea:        idea,
		MaxPersonas: maxPersonas,
		Experts:     experts,
		Attachments: attachments,
	}
}

// BuildRatingPrompts returns the system and user prompts for a ranking call,
// falling back to the hardcoded variants when a template fails.
func (pb *PromptBuilder) BuildRatingPrompts(data RatingPromptData, logger *zap.Logger) (string, string) {
	system, err := pb.Render(TemplateRatingSystem, data)
	if err != nil {
		logger.Warn("Rating system template failed, using fallback", zap.Error(err))
		system = fallbackRatingSystemPrompt
	}

	user, err := pb.Render(TemplateRatingUser, data)
	if err != nil {
		logger.Warn("Rating user template failed, using fallback", zap.Error(err))
		user = FallbackRatingUserPrompt(data)
	}

	return strings.TrimSpace(system), strings.TrimSpace(user)
}
