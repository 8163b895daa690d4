package targets

import (
	"context"
	"errors"
	"testing"

	"push-dispatcher/internal/adapters/memory"
	"push-dispatcher/internal/domain"
)

func seed() *memory.Store {
	store := memory.NewStore()
	store.PutSettings(domain.RecipientSettings{UserID: "alice", Enabled: true, Preferences: domain.Preferences{domain.TopicContests: true}})
	store.PutSettings(domain.RecipientSettings{UserID: "bob", Enabled: true, Preferences: domain.Preferences{}})
	store.PutSettings(domain.RecipientSettings{UserID: "carol", Enabled: false, Preferences: domain.Preferences{domain.TopicContests: true}})
	return store
}

func ids(list []domain.RecipientSettings) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.UserID)
	}
	return out
}

func TestResolve(t *testing.T) {
	resolver := NewResolver(seed())
	tests := []struct {
		name   string
		target domain.Target
		want   []string
	}{
		{name: "all enabled", target: domain.AllTarget(), want: []string{"alice", "bob"}},
		{name: "topic filters disabled", target: domain.TopicTarget(domain.TopicContests), want: []string{"alice"}},
		{name: "topic without subscribers", target: domain.TopicTarget(domain.TopicCommunity), want: nil},
		{name: "users skip missing", target: domain.UserTarget("bob", "ghost", "bob", "carol"), want: []string{"bob", "carol"}},
		{name: "unknown type", target: domain.Target{Type: "segment"}, want: nil},
		{name: "empty type", target: domain.Target{}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("получили %v, ожидали %v", gotIDs, tt.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Fatalf("получили %v, ожидали %v", gotIDs, tt.want)
				}
			}
		})
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	store := seed()
	store.FailOn("ListEnabled", errors.New("connection reset"))
	if _, err := NewResolver(store).Resolve(context.Background(), domain.AllTarget()); err == nil {
		t.Fatalf("ожидали ошибку хранилища")
	}
}
