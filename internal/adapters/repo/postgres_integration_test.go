//go:build integration

package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/db"
)

// Запуск: PG_TEST_DSN=postgres://... go test -tags integration ./internal/adapters/repo/
func openTestRepo(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN не задан")
	}
	pool, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("не удалось подключиться к postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(pool); err != nil {
		t.Fatalf("не удалось применить миграции: %v", err)
	}
	return NewPostgres(pool)
}

func testUser(t *testing.T, p *Postgres) string {
	t.Helper()
	userID := "it-" + uuid.NewString()
	t.Cleanup(func() {
		_ = p.DeleteUserData(context.Background(), userID)
	})
	return userID
}

func containsUser(list []domain.RecipientSettings, userID string) bool {
	for _, s := range list {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

func TestPostgresListByTopicRequiresExplicitOptIn(t *testing.T) {
	p := openTestRepo(t)
	ctx := context.Background()
	optIn, optOut, silent := testUser(t, p), testUser(t, p), testUser(t, p)

	for userID, prefs := range map[string]domain.Preferences{
		optIn:  {domain.TopicContests: true},
		optOut: {domain.TopicContests: false},
		silent: {domain.TopicCommunity: true},
	} {
		_, err := p.UpsertSettings(ctx, userID, func(s *domain.RecipientSettings) error {
			s.Preferences = prefs
			return nil
		})
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	list, err := p.ListByTopic(ctx, domain.TopicContests)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !containsUser(list, optIn) {
		t.Fatalf("подписанный пользователь должен попасть в выборку")
	}
	if containsUser(list, optOut) || containsUser(list, silent) {
		t.Fatalf("в выборку попали пользователи без явной подписки")
	}
}

func TestPostgresConcurrentTokenWrites(t *testing.T) {
	p := openTestRepo(t)
	ctx := context.Background()
	userID := testUser(t, p)

	for _, token := range []string{"ExponentPushToken[a]", "ExponentPushToken[b]"} {
		if _, err := p.RegisterDeviceToken(ctx, userID, domain.DeviceToken{Token: token, Platform: domain.PlatformIOS}, domain.MaxDeviceTokens); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := p.RemoveDeviceToken(ctx, userID, "ExponentPushToken[a]")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := p.RegisterDeviceToken(ctx, userID, domain.DeviceToken{Token: "ExponentPushToken[c]", Platform: domain.PlatformAndroid}, domain.MaxDeviceTokens)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	settings, err := p.GetSettings(ctx, userID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got := map[string]bool{}
	for _, d := range settings.DeviceTokens {
		got[d.Token] = true
	}
	if len(got) != 2 || !got["ExponentPushToken[b]"] || !got["ExponentPushToken[c]"] {
		t.Fatalf("ожидали токены b и c, получили %+v", settings.DeviceTokens)
	}

	removed, err := p.RemoveDeviceToken(ctx, userID, "ExponentPushToken[a]")
	if err != nil || removed {
		t.Fatalf("повторное удаление не должно ничего менять, removed=%v err=%v", removed, err)
	}
}

func TestPostgresListUnprocessedSkipsFreshTickets(t *testing.T) {
	p := openTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	oldID, freshID := "it-"+uuid.NewString(), "it-"+uuid.NewString()

	err := p.SaveTickets(ctx, []domain.DeliveryTicket{
		{TicketID: oldID, Token: "ExponentPushToken[a]", UserID: "it-user", Topic: string(domain.TopicContests), CreatedAt: now.Add(-time.Hour)},
		{TicketID: freshID, Token: "ExponentPushToken[a]", UserID: "it-user", Topic: string(domain.TopicContests), CreatedAt: now},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	t.Cleanup(func() {
		_ = p.MarkProcessed(context.Background(), []string{oldID, freshID})
	})

	list, err := p.ListUnprocessed(ctx, now.Add(-15*time.Minute), 1000)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	seen := map[string]bool{}
	for _, ticket := range list {
		seen[ticket.TicketID] = true
	}
	if !seen[oldID] || seen[freshID] {
		t.Fatalf("ожидали только старый тикет, old=%v fresh=%v", seen[oldID], seen[freshID])
	}
}
