package memory

import (
	"context"
	"testing"
	"time"

	"push-dispatcher/internal/domain"
)

func TestStoreListDueOrdersBySendAfter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{-time.Minute, -time.Hour, time.Hour, -30 * time.Minute} {
		if _, err := store.Enqueue(ctx, domain.NotificationRequest{Title: "t", Body: "b", Target: domain.AllTarget(), SendAfter: now.Add(offset)}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	due, err := store.ListDue(ctx, now, 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("ожидали 2 записи, получили %d", len(due))
	}
	if !due[0].SendAfter.Equal(now.Add(-time.Hour)) || !due[1].SendAfter.Equal(now.Add(-30*time.Minute)) {
		t.Fatalf("нарушен порядок send_after: %v, %v", due[0].SendAfter, due[1].SendAfter)
	}
}

func TestStoreListByTopicRequiresExplicitOptIn(t *testing.T) {
	store := NewStore()
	store.PutSettings(domain.RecipientSettings{UserID: "a", Enabled: true, Preferences: domain.Preferences{domain.TopicContests: true}})
	store.PutSettings(domain.RecipientSettings{UserID: "b", Enabled: true, Preferences: domain.Preferences{}})
	store.PutSettings(domain.RecipientSettings{UserID: "c", Enabled: false, Preferences: domain.Preferences{domain.TopicContests: true}})

	got, err := store.ListByTopic(context.Background(), domain.TopicContests)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "a" || got[1].UserID != "c" {
		t.Fatalf("ожидали a и c, получили %+v", got)
	}
}

func TestStoreUpsertDoesNotLeakMutations(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	settings, err := store.UpsertSettings(ctx, "u1", func(s *domain.RecipientSettings) error {
		s.Preferences[domain.TopicCommunity] = false
		return nil
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	settings.Preferences[domain.TopicCommunity] = true

	stored, _ := store.GetSettings(ctx, "u1")
	if !stored.Preferences.Disabled(domain.TopicCommunity) {
		t.Fatalf("изменение копии не должно попадать в хранилище")
	}
	if stored.Timezone != domain.DefaultTimezone || !stored.Enabled {
		t.Fatalf("ожидали значения по умолчанию, получили %+v", stored)
	}
}
