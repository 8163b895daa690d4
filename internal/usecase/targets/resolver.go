package targets

import (
	"context"
	"fmt"
	"strings"

	"push-dispatcher/internal/domain"
)

// Resolver превращает описание адресатов в список настроек получателей.
type Resolver struct {
	recipients domain.RecipientRepo
}

// NewResolver создаёт резолвер.
func NewResolver(recipients domain.RecipientRepo) *Resolver {
	return &Resolver{recipients: recipients}
}

// Resolve возвращает получателей запроса. Неизвестный тип адресатов даёт пустой список.
func (r *Resolver) Resolve(ctx context.Context, target domain.Target) ([]domain.RecipientSettings, error) {
	switch target.Type {
	case domain.TargetAll:
		list, err := r.recipients.ListEnabled(ctx)
		if err != nil {
			return nil, fmt.Errorf("список включённых получателей: %w", err)
		}
		return onlyEnabled(list), nil
	case domain.TargetTopic:
		if !target.Topic.Valid() {
			return nil, nil
		}
		list, err := r.recipients.ListByTopic(ctx, target.Topic)
		if err != nil {
			return nil, fmt.Errorf("получатели темы %s: %w", target.Topic, err)
		}
		return onlyEnabled(list), nil
	case domain.TargetUser:
		ids := uniqueIDs(target.UserIDs)
		if len(ids) == 0 {
			return nil, nil
		}
		list, err := r.recipients.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("получатели по идентификаторам: %w", err)
		}
		return list, nil
	default:
		return nil, nil
	}
}

func onlyEnabled(list []domain.RecipientSettings) []domain.RecipientSettings {
	out := list[:0]
	for _, s := range list {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
