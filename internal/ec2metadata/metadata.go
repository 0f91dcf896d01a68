package ec2metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrTokenNotFound        = errors.New("token not found")
	ErrRebalanceNotFound    = errors.New("rebalance not found")
	ErrInterruptionNotFound = errors.New("spot interruption not found")
	ErrInstanceIDNotFound   = errors.New("instance id not found")
)

const (
	tokenHeader    = "X-aws-ec2-metadata-token"
	tokenTTLHeader = "X-aws-ec2-metadata-token-ttl-seconds"
)

var _ Service = (*service)(nil)

type Service interface {
	GetToken(ctx context.Context) (string, error)
	GetInstanceID(ctx context.Context, token string) (string, error)
	GetASGReBalance(ctx context.Context, token string) (*ASGReBalanceResponse, error)
	GetSpotInterruption(ctx context.Context, token string) (*SpotInterruptionResponse, error)
}

func DefaultConfig() *Config {
	return &Config{
		TokenTTL: 21600,
		Host:     "169.254.169.254",
	}
}

type Config struct {
	// TokenTTL is in seconds.
	TokenTTL int
	// Host may carry a port, e.g. 127.0.0.1:8080 for the mock server.
	Host   string
	Client *http.Client
}

func NewService(cfg *Config) Service {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &service{
		ttl:    cfg.TokenTTL,
		host:   strings.TrimPrefix(cfg.Host, "http://"),
		client: client,
	}
}

type service struct {
	ttl    int
	host   string
	client *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// GetToken returns the cached IMDSv2 session token, requesting a new one
// once the previous is within a minute of expiring.
func (s *service) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		return s.token, nil
	}

	body, err := s.do(ctx, http.MethodPut, "/latest/api/token", http.Header{
		tokenTTLHeader: []string{strconv.Itoa(s.ttl)},
	}, ErrTokenNotFound)
	if err != nil {
		return "", err
	}

	s.token = strings.TrimSpace(string(body))
	s.expiresAt = time.Now().Add(time.Duration(s.ttl)*time.Second - time.Minute)

	return s.token, nil
}

func (s *service) GetInstanceID(ctx context.Context, token string) (string, error) {
	body, err := s.do(ctx, http.MethodGet, "/latest/meta-data/instance-id", withToken(token), ErrInstanceIDNotFound)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

type ASGReBalanceResponse struct {
	Time time.Time `json:"noticeTime"`
}

func (s *service) GetASGReBalance(ctx context.Context, token string) (*ASGReBalanceResponse, error) {
	body, err := s.do(ctx, http.MethodGet, "/latest/meta-data/events/recommendations/rebalance", withToken(token), ErrRebalanceNotFound)
	if err != nil {
		return nil, err
	}

	balance := &ASGReBalanceResponse{}
	if err := json.Unmarshal(body, balance); err != nil {
		return nil, fmt.Errorf("failed to decode rebalance recommendation: %w", err)
	}

	return balance, nil
}

type SpotInterruptionResponse struct {
	Action string    `json:"action"`
	Time   time.Time `json:"time"`
}

func (s *service) GetSpotInterruption(ctx context.Context, token string) (*SpotInterruptionResponse, error) {
	body, err := s.do(ctx, http.MethodGet, "/latest/meta-data/spot/instance-action", withToken(token), ErrInterruptionNotFound)
	if err != nil {
		return nil, err
	}

	interruption := &SpotInterruptionResponse{}
	if err := json.Unmarshal(body, interruption); err != nil {
		return nil, fmt.Errorf("failed to decode spot interruption: %w", err)
	}

	return interruption, nil
}

func withToken(token string) http.Header {
	return http.Header{tokenHeader: []string{token}}
}

// do returns the response body, or notFound on 404.
func (s *service) do(ctx context.Context, method, path string, header http.Header, notFound error) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, "http://"+s.host+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header = header

	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, notFound
	} else if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	return io.ReadAll(io.LimitReader(res.Body, 64<<10))
}
