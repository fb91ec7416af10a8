package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/google/go-github/v60/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// RequestIDHeader is sent by every GitHub and GitHub Enterprise API response.
const RequestIDHeader = "X-GitHub-Request-Id"

// NotGitHubMessage is reported when a URL answers without RequestIDHeader.
const NotGitHubMessage = "Specified URL is not a Github server"

// Outcome classifies the result of a probe.
type Outcome string

const (
	OutcomeGitHub      Outcome = "github"
	OutcomeNotGitHub   Outcome = "not_github"
	OutcomeUnreachable Outcome = "unreachable"
	OutcomeInvalidURL  Outcome = "invalid_url"
)

// ProbeResult describes a single probe of a candidate API URL.
type ProbeResult struct {
	APIURL        string        `json:"apiUrl"`
	Outcome       Outcome       `json:"outcome"`
	StatusCode    int           `json:"statusCode,omitempty"`
	RequestID     string        `json:"requestId,omitempty"`
	RateLimit     int           `json:"rateLimit,omitempty"`
	RateRemaining int           `json:"rateRemaining,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// ProbeError is returned when a URL is not a reachable GitHub API. Message is
// suitable for showing to the user as-is.
type ProbeError struct {
	Outcome Outcome
	Message string
	Err     error
}

func (e *ProbeError) Error() string {
	return e.Message
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Prober checks whether a URL points at a GitHub-compatible API.
type Prober interface {
	// Probe issues a GET against the root of apiURL. The result is always
	// non-nil; the error is a *ProbeError unless the outcome is OutcomeGitHub.
	Probe(ctx context.Context, apiURL string) (*ProbeResult, error)
}

// Metrics records probe outcomes.
type Metrics interface {
	ObserveProbe(outcome string, duration time.Duration)
}

// prober implements Prober.
type prober struct {
	log       logrus.FieldLogger
	metrics   Metrics
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// Ensure prober implements Prober.
var _ Prober = (*prober)(nil)

// NewProber creates a new prober. A nil transport uses http.DefaultTransport.
func NewProber(
	log logrus.FieldLogger,
	cfg config.ProbeConfig,
	m Metrics,
	transport http.RoundTripper,
) Prober {
	if transport == nil {
		transport = http.DefaultTransport
	}

	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	return &prober{
		log:       log.WithField("component", "probe"),
		metrics:   m,
		http:      &http.Client{Transport: transport},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
}

// Probe implements Prober.
func (p *prober) Probe(ctx context.Context, apiURL string) (*ProbeResult, error) {
	start := time.Now()

	result, err := p.probe(ctx, apiURL)
	result.Duration = time.Since(start)

	if p.metrics != nil {
		p.metrics.ObserveProbe(string(result.Outcome), result.Duration)
	}

	log := p.log.WithFields(logrus.Fields{
		"api_url":  apiURL,
		"outcome":  result.Outcome,
		"duration": result.Duration,
	})

	if err != nil {
		log.WithError(err).Debug("Probe failed")
	} else {
		log.WithFields(logrus.Fields{
			"status":         result.StatusCode,
			"request_id":     result.RequestID,
			"rate_remaining": result.RateRemaining,
		}).Debug("Probe succeeded")
	}

	return result, err
}

func (p *prober) probe(ctx context.Context, apiURL string) (*ProbeResult, error) {
	result := &ProbeResult{APIURL: apiURL}

	base, err := parseBaseURL(apiURL)
	if err != nil {
		result.Outcome = OutcomeInvalidURL

		return result, &ProbeError{Outcome: OutcomeInvalidURL, Message: err.Error(), Err: err}
	}

	gh := github.NewClient(p.http)
	gh.BaseURL = base

	if p.userAgent != "" {
		gh.UserAgent = p.userAgent
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := gh.NewRequest(http.MethodGet, "", nil)
	if err != nil {
		result.Outcome = OutcomeInvalidURL

		return result, &ProbeError{Outcome: OutcomeInvalidURL, Message: err.Error(), Err: err}
	}

	// Non-2xx responses come back as *github.ErrorResponse alongside a
	// response; only the header decides whether the remote is GitHub.
	resp, err := gh.Do(ctx, req, nil)
	if resp == nil || resp.Response == nil {
		if err == nil {
			err = errors.New("no response")
		}

		result.Outcome = OutcomeUnreachable

		return result, &ProbeError{Outcome: OutcomeUnreachable, Message: networkErrorMessage(err), Err: err}
	}

	result.StatusCode = resp.StatusCode
	result.RequestID = resp.Header.Get(RequestIDHeader)

	if result.RequestID == "" {
		result.Outcome = OutcomeNotGitHub

		return result, &ProbeError{Outcome: OutcomeNotGitHub, Message: NotGitHubMessage}
	}

	result.Outcome = OutcomeGitHub

	// GitHub Enterprise only sends rate limit headers when limiting is enabled.
	if resp.Rate.Limit > 0 {
		result.RateLimit = resp.Rate.Limit
		result.RateRemaining = resp.Rate.Remaining
	}

	return result, nil
}

// parseBaseURL validates apiURL and returns it with the trailing slash the
// go-github client requires of its base URL.
func parseBaseURL(apiURL string) (*url.URL, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported protocol scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", apiURL)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		u.RawPath = ""
	}

	return u, nil
}

// networkErrorMessage returns the most specific description of a transport
// failure: the resolver error for unknown hosts, otherwise the dial error.
func networkErrorMessage(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Error()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out waiting for a response"
	}

	return err.Error()
}
