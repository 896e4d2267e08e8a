package usecase

import (
	"strings"

	"mailcal/internal/event/domain"
)

// Materializer applies default-field and default-duration policy to a RawExtraction
type Materializer struct {
	normalizer *Normalizer
}

func NewMaterializer(normalizer *Normalizer) *Materializer {
	return &Materializer{normalizer: normalizer}
}

// Materialize returns false (skip) when no usable start could be resolved.
// A missing or unresolvable end becomes start + DefaultDuration.
func (m *Materializer) Materialize(raw domain.RawExtraction) (domain.NormalizedEvent, bool) {
	start, ok := m.normalizer.Normalize(deref(raw.StartText))
	if !ok {
		return domain.NormalizedEvent{}, false
	}

	end, ok := m.normalizer.Normalize(deref(raw.EndText))
	if !ok {
		end = start.Add(domain.DefaultDuration)
	}

	title := strings.TrimSpace(deref(raw.Name))
	if title == "" {
		title = domain.DefaultTitle
	}

	loc := m.normalizer.Location()
	return domain.NormalizedEvent{
		Title:       title,
		Description: deref(raw.Description),
		Location:    deref(raw.Location),
		Start:       start.In(loc),
		End:         end.In(loc),
		TimeZone:    loc.String(),
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
