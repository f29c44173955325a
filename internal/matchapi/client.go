package matchapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultURL = "http://127.0.0.1:5000"
	userAgent  = "spigell/radar-pilot"

	defaultTimeout = 10 * time.Second
)

// Client talks to the remote matching service.
type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	// Limiter throttles every outgoing request. Nil means unlimited.
	Limiter *rate.Limiter
}

func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		token:  token,
		APIURL: DefaultURL,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

// WithRateLimit caps requests per second. A non-positive rps removes the cap.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.Limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}

	c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)

	return c
}
