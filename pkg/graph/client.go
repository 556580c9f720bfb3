package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"fbharvest/pkg/logger"
	"fbharvest/pkg/ratelimit"
)

// escalation is the consecutive-error wait ladder. One rung per three
// errors; running off the top aborts the job.
var escalation = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
}

var (
	migratedRe = regexp.MustCompile(`[Pp]age ID (\d+) was migrated to page ID (\d+)`)
	objectIDRe = regexp.MustCompile(`[Oo]bject with ID '([^']+)'`)
	errCodeRe  = regexp.MustCompile(`\(#(\d+)\)`)
)

// Options configures a Client. Zero values fall back to production
// defaults; tests shrink the delays to keep runs fast.
type Options struct {
	Timeout           time.Duration
	RateLimitWait     time.Duration
	RateLimitSlice    time.Duration
	NetworkRetryDelay time.Duration
	UnknownRetryDelay time.Duration
	Limiter           ratelimit.Limiter
}

// Client performs Graph API requests with the full retry protocol:
// quick retries for transport faults, sliced sleeps for quota
// exhaustion, bounded retries for opaque platform errors, and typed
// errors for conditions the caller must act on.
type Client struct {
	httpClient *http.Client
	tokens     *TokenPool
	limiter    ratelimit.Limiter
	log        logger.Logger

	rateLimitWait     time.Duration
	rateLimitSlice    time.Duration
	networkRetryDelay time.Duration
	unknownRetryDelay time.Duration
}

func NewClient(opts Options, tokens *TokenPool, log logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = time.Hour
	}
	if opts.RateLimitSlice <= 0 {
		opts.RateLimitSlice = 5 * time.Minute
	}
	if opts.NetworkRetryDelay <= 0 {
		opts.NetworkRetryDelay = time.Second
	}
	if opts.UnknownRetryDelay <= 0 {
		opts.UnknownRetryDelay = 10 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient:        &http.Client{Timeout: opts.Timeout},
		tokens:            tokens,
		limiter:           opts.Limiter,
		log:               log,
		rateLimitWait:     opts.RateLimitWait,
		rateLimitSlice:    opts.RateLimitSlice,
		networkRetryDelay: opts.NetworkRetryDelay,
		unknownRetryDelay: opts.UnknownRetryDelay,
	}
}

// Get fetches rawurl and returns the response body. The current pool
// token is injected on every attempt, which also refreshes the token
// baked into platform-issued next-page cursors.
func (c *Client) Get(ctx context.Context, rawurl string) ([]byte, error) {
	var (
		errCount       int
		unknownRetries int
		rateSlept      time.Duration
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if !c.limiter.Allow() {
				c.limiter.Wait()
			}
		}

		body, authMsg, status, err := c.attempt(ctx, rawurl)
		if err != nil {
			// Transport fault. Quick retries first, then the ladder.
			errCount++
			c.log.WarnWithFields("request failed", map[string]interface{}{
				"error": err.Error(),
				"count": errCount,
			})
			if wait, fatal := c.escalate(errCount); fatal != nil {
				return nil, fatal
			} else if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if status == http.StatusOK {
			return body, nil
		}

		switch {
		case isRateLimited(authMsg):
			if rateSlept >= c.rateLimitWait {
				errCount++
				c.log.Error("rate limit persists past wait budget")
				if wait, fatal := c.escalate(errCount); fatal != nil {
					return nil, fatal
				} else if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			rateSlept += c.rateLimitSlice
			c.log.WarnWithFields("rate limited, sleeping", map[string]interface{}{
				"slice":     c.rateLimitSlice.String(),
				"total":     rateSlept.String(),
				"remaining": (c.rateLimitWait - rateSlept).String(),
			})
			if err := c.sleep(ctx, c.rateLimitSlice); err != nil {
				return nil, err
			}

		case isUnknownError(authMsg):
			unknownRetries++
			if unknownRetries >= 3 {
				c.log.WarnWithFields("platform keeps failing, treating as empty", map[string]interface{}{
					"message": authMsg,
				})
				return []byte(`{"data": []}`), nil
			}
			if err := c.sleep(ctx, c.unknownRetryDelay); err != nil {
				return nil, err
			}

		case isMigrated(authMsg):
			m := migratedRe.FindStringSubmatch(authMsg)
			return nil, &MigratedError{OldID: m[1], NewID: m[2]}

		case isNotFound(authMsg):
			nf := &NotFoundError{Message: authMsg}
			if m := objectIDRe.FindStringSubmatch(authMsg); m != nil {
				nf.ID = m[1]
			}
			return nil, nf

		case authMsg != "":
			return nil, &PlatformError{Message: authMsg, Code: platformCode(authMsg)}

		default:
			// Non-platform HTTP failure (gateway, proxy). Ladder.
			errCount++
			c.log.WarnWithFields("unexpected status", map[string]interface{}{
				"status": status,
				"count":  errCount,
			})
			if wait, fatal := c.escalate(errCount); fatal != nil {
				return nil, fatal
			} else if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
}

// GetEnvelope fetches and decodes a list response.
func (c *Client) GetEnvelope(ctx context.Context, rawurl string) (*Envelope, error) {
	body, err := c.Get(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &env, nil
}

// GetJSON fetches and decodes into v.
func (c *Client) GetJSON(ctx context.Context, rawurl string, v interface{}) error {
	body, err := c.Get(ctx, rawurl)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// attempt sends one request. Returns the body, the platform error
// message from the WWW-Authenticate header (empty when absent) and the
// HTTP status, or a transport error.
func (c *Client) attempt(ctx context.Context, rawurl string) ([]byte, string, int, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, "", 0, fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", c.tokens.Next())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, err
	}
	return body, resp.Header.Get("WWW-Authenticate"), resp.StatusCode, nil
}

// escalate maps a consecutive-error count onto the wait ladder. The
// first two failures retry quickly; from the third on each three
// errors climb one rung, and past the top rung the job aborts.
func (c *Client) escalate(errCount int) (time.Duration, error) {
	if errCount <= 2 {
		return c.networkRetryDelay, nil
	}
	rung := errCount/3 - 1
	if rung >= len(escalation) {
		return 0, &TooManyErrorsError{Count: errCount}
	}
	return escalation[rung], nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRateLimited(msg string) bool {
	return strings.Contains(msg, "request limit reached") ||
		strings.Contains(msg, "(#4)") ||
		strings.Contains(msg, "(#17)") ||
		strings.Contains(msg, "(#32)")
}

func isUnknownError(msg string) bool {
	return strings.Contains(msg, "An unknown error has occurred") ||
		strings.Contains(msg, "An unexpected error has occurred") ||
		strings.Contains(msg, "Please retry your request later")
}

func isMigrated(msg string) bool {
	return migratedRe.MatchString(msg)
}

func isNotFound(msg string) bool {
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "Unsupported get request") ||
		strings.Contains(msg, "cannot be loaded due to missing permissions") ||
		strings.Contains(msg, "GraphMethodException")
}

func platformCode(msg string) int {
	m := errCodeRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	var code int
	fmt.Sscanf(m[1], "%d", &code)
	return code
}
