package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/models"
	"content-harvester/pkg/utils"
)

// Page is a fetched response with its body decoded to UTF-8
type Page struct {
	URL         *url.URL // Final URL after redirects
	StatusCode  int
	ContentType string
	Charset     string // Charset the body was decoded from
	Body        []byte
}

// Document parses the page body.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", utils.ErrParsing, p.URL, err)
	}
	doc.Url = p.URL
	return doc, nil
}

// Outcome is the typed result of a single fetch attempt.
// Page is set whenever a response was received, including non-2xx ones.
type Outcome struct {
	Status models.FetchStatus
	Page   *Page
	Err    error
}

// StatusCode returns the HTTP status of the response, or 0 when none was received.
func (o Outcome) StatusCode() int {
	if o.Page == nil {
		return 0
	}
	return o.Page.StatusCode
}

// Fetcher performs single-attempt GET requests. Retrying is the caller's decision.
type Fetcher struct {
	client  *http.Client
	limiter *RateLimiter // optional per-host politeness delay
	maxBody int64
	log     *logrus.Entry
}

// NewFetcher creates a Fetcher. limiter may be nil.
func NewFetcher(client *http.Client, limiter *RateLimiter, maxBody int64, log *logrus.Entry) *Fetcher {
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	return &Fetcher{
		client:  client,
		limiter: limiter,
		maxBody: maxBody,
		log:     log,
	}
}

// Fetch issues one GET for rawURL bounded by timeout.
// Non-2xx, timeouts and connection errors give FetchStatusFailed; a blank 2xx body gives FetchStatusEmpty.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) Outcome {
	reqLog := f.log.WithField("url", rawURL)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Outcome{Status: models.FetchStatusFailed, Err: fmt.Errorf("%w: %s: %w", utils.ErrRequestCreation, rawURL, err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host := req.URL.Hostname()
	if f.limiter != nil {
		if err := f.limiter.ApplyDelay(ctx, host); err != nil {
			return Outcome{Status: models.FetchStatusFailed, Err: err}
		}
	}

	resp, err := f.client.Do(req)
	if f.limiter != nil {
		f.limiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			reqLog.Warnf("Request timed out after %v", timeout)
		} else {
			reqLog.Warnf("Network error: %v", err)
		}
		return Outcome{Status: models.FetchStatusFailed, Err: err}
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         resp.Request.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	resLog := reqLog.WithField("status_code", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drained so the connection can be reused; a failed drain only costs that
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBody)); err != nil {
			resLog.Debugf("Draining error body failed: %v", err)
		}
		var sentinel error
		switch {
		case resp.StatusCode >= 500:
			sentinel = utils.ErrServerHTTPError
		case resp.StatusCode >= 400:
			sentinel = utils.ErrClientHTTPError
		default:
			sentinel = utils.ErrOtherHTTPError
		}
		resLog.Warn("Non-success status")
		return Outcome{
			Status: models.FetchStatusFailed,
			Page:   page,
			Err:    fmt.Errorf("%w: status %d %s", sentinel, resp.StatusCode, resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		resLog.Warnf("Reading body failed: %v", err)
		return Outcome{Status: models.FetchStatusFailed, Page: page, Err: fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)}
	}

	page.Body, page.Charset = decodeToUTF8(body, page.ContentType)
	if len(bytes.TrimSpace(page.Body)) == 0 {
		resLog.Debug("Empty response body")
		return Outcome{Status: models.FetchStatusEmpty, Page: page}
	}

	resLog.WithField("charset", page.Charset).Debug("Fetched")
	return Outcome{Status: models.FetchStatusSuccess, Page: page}
}

// Backoff returns the delay before retry number attempt (1-based):
// initial * 2^(attempt-1), capped at max, with +/-10% jitter.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > max {
		delay = max
	}

	var jitter time.Duration
	if delay > 0 {
		if jitterRange := int64(delay) / 5; jitterRange > 0 {
			jitter = time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
		}
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
