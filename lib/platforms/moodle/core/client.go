// Package core talks to moodle's web services. It authenticates with a mobile
// app token when the site allows it and falls back to a browser session
// (using the ajax service) when it does not.
package core

import (
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"moodle-harvest/internal/assert"
	"moodle-harvest/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("platforms/moodle/core")

const (
	restEndpoint  = "/webservice/rest/server.php"
	ajaxEndpoint  = "/lib/ajax/service.php"
	tokenEndpoint = "/login/token.php"
	loginEndpoint = "/login/index.php"

	mobileService = "moodle_mobile_app"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

type ClientOptions struct {
	BaseUrl  string
	Username string
	Password string
	// Token skips the token endpoint when set.
	Token string

	// RequestsPerSecond defaults to 4.
	RequestsPerSecond float64
	// CallTimeout defaults to 60 seconds, FetchTimeout to 5 minutes.
	CallTimeout  time.Duration
	FetchTimeout time.Duration

	// MaxAttempts is the most times a call is made when moodle keeps reporting
	// a transient database error, it defaults to 3.
	MaxAttempts int
	// RetryWait and RetryMaxWait bound the exponential backoff between
	// attempts, they default to 1 and 8 seconds.
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

func (o *ClientOptions) setDefaults() {
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 4
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = time.Minute
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Second
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = 8 * time.Second
	}
}

// Client is a moodle web service client. It is not safe for concurrent
// authentication, calls made after Authenticate returns may run concurrently.
type Client struct {
	BaseUrl *url.URL

	// Api carries web service calls made with a token.
	Api *resty.Client
	// Web carries the browser session, raw file fetches and ajax calls.
	Web *resty.Client

	Token   string
	Sesskey string

	opts ClientOptions
	tel  telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.BaseUrl)
	opts.setDefaults()
	assert.Positive("RequestsPerSecond", opts.RequestsPerSecond)
	assert.Positive("MaxAttempts", opts.MaxAttempts)

	tel = telemetry.NewScopedAPI("moodle_client", tel)

	baseUrl, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	// burst >= 1 just means that no requests will be dropped
	limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	waitLimiter := func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	}

	api := resty.New()
	api.SetBaseURL(baseUrl.String())
	api.SetHeader("Accept", "application/json")
	api.SetTimeout(opts.CallTimeout)
	api.OnBeforeRequest(waitLimiter)
	configureRetries(api, opts)
	telemetry.InstrumentResty(api, tel)

	web := resty.New()
	web.SetBaseURL(baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	web.SetCookieJar(jar)
	web.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(web.GetClient().Transport)
	web.SetHeader("user-agent", userAgent)
	web.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	web.SetTimeout(opts.FetchTimeout)
	web.OnBeforeRequest(waitLimiter)
	configureRetries(web, opts)
	telemetry.InstrumentResty(web, tel)

	return &Client{
		BaseUrl: baseUrl,
		Api:     api,
		Web:     web,
		Token:   opts.Token,
		opts:    opts,
		tel:     tel,
	}, nil
}

// configureRetries makes resty repeat a request while moodle answers with a
// transient database error, nothing else is retried.
func configureRetries(client *resty.Client, opts ClientOptions) {
	client.SetRetryCount(opts.MaxAttempts - 1)
	client.SetRetryWaitTime(opts.RetryWait)
	client.SetRetryMaxWaitTime(opts.RetryMaxWait)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil || res == nil {
			return false
		}
		failure, ok := parseFailure(res.Body())
		return ok && Classify(failure) == ClassTransient
	})
}

// SessionMode reports whether calls go through the ajax service because no
// token could be obtained.
func (c *Client) SessionMode() bool {
	return c.Token == "" && c.Sesskey != ""
}
