package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://exp.host/--/api/v2"
	// MaxMessagesPerRequest — предел Expo для /push/send.
	MaxMessagesPerRequest = 100
	// MaxReceiptIDsPerRequest — предел Expo для /push/getReceipts.
	MaxReceiptIDsPerRequest = 1000
)

var (
	bracketToken = regexp.MustCompile(`^Expo(nent)?PushToken\[.+\]$`)
	uuidToken    = regexp.MustCompile(`(?i)^[a-z\d]{8}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{4}-[a-z\d]{12}$`)
)

// Client выполняет запросы к Expo push API.
type Client struct {
	http        *http.Client
	baseURL     string
	accessToken string
	batchSize   int
}

var _ domain.PushTransport = (*Client)(nil)

// NewClient создаёт клиента Expo. batchSize ограничивается пределом Expo.
func NewClient(accessToken, baseURL string, timeout time.Duration, batchSize int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if batchSize <= 0 || batchSize > MaxMessagesPerRequest {
		batchSize = MaxMessagesPerRequest
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		accessToken: accessToken,
		batchSize:   batchSize,
	}
}

// ValidToken проверяет формат токена Expo.
func (c *Client) ValidToken(token string) bool {
	return IsExpoPushToken(token)
}

// IsExpoPushToken повторяет проверку из официальных SDK Expo.
func IsExpoPushToken(token string) bool {
	return bracketToken.MatchString(token) || uuidToken.MatchString(token)
}

// MaxBatchSize возвращает размер пачки для Send.
func (c *Client) MaxBatchSize() int {
	return c.batchSize
}

type sendResponse struct {
	Data   []ticketWire `json:"data"`
	Errors []apiError   `json:"errors"`
}

type ticketWire struct {
	Status  string         `json:"status"`
	ID      string         `json:"id"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type receiptsRequest struct {
	IDs []string `json:"ids"`
}

type receiptsResponse struct {
	Data   map[string]ticketWire `json:"data"`
	Errors []apiError            `json:"errors"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send отправляет пачку сообщений. Тикеты возвращаются в порядке сообщений.
func (c *Client) Send(ctx context.Context, messages []domain.PushMessage) ([]domain.PushTicket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxMessagesPerRequest {
		return nil, fmt.Errorf("expo: batch of %d exceeds %d messages", len(messages), MaxMessagesPerRequest)
	}
	var resp sendResponse
	if err := c.post(ctx, "/push/send", "send", messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("expo: send rejected: %s", joinErrors(resp.Errors))
	}
	if len(resp.Data) != len(messages) {
		return nil, fmt.Errorf("expo: got %d tickets for %d messages", len(resp.Data), len(messages))
	}
	tickets := make([]domain.PushTicket, 0, len(resp.Data))
	for _, t := range resp.Data {
		tickets = append(tickets, domain.PushTicket{ID: t.ID, Status: t.Status, Message: t.Message, Details: t.Details})
	}
	return tickets, nil
}

// GetReceipts запрашивает квитанции, разбивая идентификаторы по пределу Expo.
// Отсутствующие в ответе идентификаторы просто не попадают в результат.
func (c *Client) GetReceipts(ctx context.Context, ticketIDs []string) (map[string]domain.PushReceipt, error) {
	receipts := make(map[string]domain.PushReceipt, len(ticketIDs))
	for start := 0; start < len(ticketIDs); start += MaxReceiptIDsPerRequest {
		end := start + MaxReceiptIDsPerRequest
		if end > len(ticketIDs) {
			end = len(ticketIDs)
		}
		var resp receiptsResponse
		if err := c.post(ctx, "/push/getReceipts", "get_receipts", receiptsRequest{IDs: ticketIDs[start:end]}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("expo: get receipts rejected: %s", joinErrors(resp.Errors))
		}
		for id, r := range resp.Data {
			receipts[id] = domain.PushReceipt{Status: r.Status, Message: r.Message, Details: r.Details}
		}
	}
	return receipts, nil
}

func (c *Client) post(ctx context.Context, path, operation string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("expo: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("expo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("expo", operation, "exp.host", start, err)
		return fmt.Errorf("expo: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("expo", operation, "exp.host", start, err)
		return fmt.Errorf("expo: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Errors []apiError `json:"errors"`
		}
		statusErr := fmt.Errorf("expo: unexpected status %d", resp.StatusCode)
		if json.Unmarshal(respBody, &apiErr) == nil && len(apiErr.Errors) > 0 {
			statusErr = fmt.Errorf("expo: status %d: %s", resp.StatusCode, joinErrors(apiErr.Errors))
		}
		metrics.ObserveNetworkRequest("expo", operation, "exp.host", start, statusErr)
		return statusErr
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		metrics.ObserveNetworkRequest("expo", operation, "exp.host", start, err)
		return fmt.Errorf("expo: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("expo", operation, "exp.host", start, nil)
	return nil
}

func joinErrors(errs []apiError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Code != "" {
			parts = append(parts, e.Code+": "+e.Message)
			continue
		}
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}
