package expo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"push-dispatcher/internal/domain"
)

func TestIsExpoPushToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]", true},
		{"ExpoPushToken[abc]", true},
		{"ExponentPushToken[]", false},
		{"ExponentPushToken[abc", false},
		{"F5741A13-BCDA-434B-A316-5DC0E6FFA94F", true},
		{"f5741a13-bcda-434b-a316-5dc0e6ffa94f", true},
		{"fcm:APA91bHun4MxP5egoKMwt2KZFBaFUH", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsExpoPushToken(tt.token); got != tt.want {
			t.Fatalf("IsExpoPushToken(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestSendReturnsTicketsInOrder(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/push/send" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var msgs []domain.PushMessage
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Errorf("не удалось разобрать тело: %v", err)
		}
		data := make([]map[string]any, 0, len(msgs))
		for i, m := range msgs {
			if m.To == "ExponentPushToken[bad]" {
				data = append(data, map[string]any{
					"status":  "error",
					"message": "not registered",
					"details": map[string]any{"error": "DeviceNotRegistered"},
				})
				continue
			}
			data = append(data, map[string]any{"status": "ok", "id": fmt.Sprintf("ticket-%d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	client := NewClient("secret", srv.URL, time.Second, 0)
	tickets, err := client.Send(context.Background(), []domain.PushMessage{
		{To: "ExponentPushToken[a]", Title: "t", Body: "b"},
		{To: "ExponentPushToken[bad]", Title: "t", Body: "b"},
	})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("ожидали Bearer-токен, получили %q", gotAuth)
	}
	if len(tickets) != 2 {
		t.Fatalf("ожидали 2 тикета, получили %d", len(tickets))
	}
	if tickets[0].Status != domain.PushStatusOK || tickets[0].ID != "ticket-0" {
		t.Fatalf("неожиданный первый тикет: %+v", tickets[0])
	}
	if tickets[1].Status != domain.PushStatusError || tickets[1].ErrorCode() != domain.PushErrorDeviceNotRegistered {
		t.Fatalf("неожиданный второй тикет: %+v", tickets[1])
	}
}

func TestSendBatchLevelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"code":"TOO_MANY_REQUESTS","message":"slow down"}]}`))
	}))
	defer srv.Close()

	client := NewClient("", srv.URL, time.Second, 0)
	if _, err := client.Send(context.Background(), []domain.PushMessage{{To: "ExponentPushToken[a]"}}); err == nil {
		t.Fatalf("ожидали ошибку для статуса 429")
	}
}

func TestSendRejectsTicketCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"only-one"}]}`))
	}))
	defer srv.Close()

	client := NewClient("", srv.URL, time.Second, 0)
	_, err := client.Send(context.Background(), []domain.PushMessage{{To: "a"}, {To: "b"}})
	if err == nil {
		t.Fatalf("ожидали ошибку при несовпадении числа тикетов")
	}
}

func TestGetReceiptsSplitsRequests(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req receiptsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("не удалось разобрать тело: %v", err)
		}
		if len(req.IDs) > MaxReceiptIDsPerRequest {
			t.Errorf("пачка %d превышает предел", len(req.IDs))
		}
		data := map[string]any{}
		for _, id := range req.IDs {
			if id == "missing" {
				continue
			}
			data[id] = map[string]any{"status": "ok"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	ids := make([]string, 0, 1500)
	for i := 0; i < 1499; i++ {
		ids = append(ids, fmt.Sprintf("id-%d", i))
	}
	ids = append(ids, "missing")

	client := NewClient("", srv.URL, time.Second, 0)
	receipts, err := client.GetReceipts(context.Background(), ids)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if calls != 2 {
		t.Fatalf("ожидали 2 запроса, получили %d", calls)
	}
	if len(receipts) != 1499 {
		t.Fatalf("ожидали 1499 квитанций, получили %d", len(receipts))
	}
	if _, ok := receipts["missing"]; ok {
		t.Fatalf("отсутствующая квитанция не должна появляться в результате")
	}
}

func TestMaxBatchSizeIsCapped(t *testing.T) {
	if got := NewClient("", "", 0, 500).MaxBatchSize(); got != MaxMessagesPerRequest {
		t.Fatalf("ожидали %d, получили %d", MaxMessagesPerRequest, got)
	}
	if got := NewClient("", "", 0, 40).MaxBatchSize(); got != 40 {
		t.Fatalf("ожидали 40, получили %d", got)
	}
}
