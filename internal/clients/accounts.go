package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sakashimaa/go-pos/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Customer is the directory record used only to annotate an order.
// Settlement never depends on it.
type Customer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
}

type accountsClient struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewAccountsClient(baseURL string, logger *zap.Logger) CustomerDirectory {
	settings := gobreaker.Settings{
		Name:        "AccountsService",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &accountsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		cb:         gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

func (c *accountsClient) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	return utils.ExecuteWithBreaker(c.cb, func() (*Customer, error) {
		url := fmt.Sprintf("%s/api/customers/%d", c.baseURL, id)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("accounts request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("accounts returned status %d", resp.StatusCode)
		}

		var customer Customer
		if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
			return nil, fmt.Errorf("failed to decode customer: %w", err)
		}

		return &customer, nil
	})
}
