package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"moodle-harvest/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_client_authenticate = "client.authenticate"
	report_client_get_sesskey  = "client.get-sesskey"
)

// Authenticate obtains a token from the mobile app service, or when the site
// disables it, logs in with a browser session. A preset token is used as is.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	if c.Token != "" {
		return nil
	}

	token, tokenErr := c.requestToken(ctx)
	if tokenErr == nil {
		c.Token = token
		return nil
	}
	c.tel.ReportWarning(report_client_authenticate, fmt.Errorf("token endpoint: %w", tokenErr))

	sessionErr := c.LoginUsernamePassword(ctx, c.opts.Username, c.opts.Password)
	if sessionErr == nil {
		return nil
	}

	err := fmt.Errorf("%w: token: %w, session: %w", ErrAuthentication, tokenErr, sessionErr)
	c.tel.ReportBroken(report_client_authenticate, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "failed to authenticate")
	return err
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	if c.opts.Username == "" {
		return "", errors.New("no username configured")
	}

	res, err := c.Api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"username": c.opts.Username,
			"password": c.opts.Password,
			"service":  mobileService,
		}).
		Get(tokenEndpoint)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("unexpected status %s", res.Status())
	}

	var payload struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}
	err = json.Unmarshal(res.Body(), &payload)
	if err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("no token issued [%s]: %s", payload.ErrorCode, payload.Error)
	}
	return payload.Token, nil
}

var loginErrorSelectors = "#loginerrormessage, .loginerrors, form#login .alert-danger"

// LoginUsernamePassword establishes a browser session and captures its sesskey.
func (c *Client) LoginUsernamePassword(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "LoginUsernamePassword")
	defer span.End()

	loginError := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("login failed: %w", err)
	}

	if username == "" {
		return loginError(errors.New("no username configured"))
	}

	res, err := c.Web.R().
		SetContext(ctx).
		Get(loginEndpoint)
	if err != nil {
		return loginError(fmt.Errorf("not-logged-in page request: %w", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return loginError(fmt.Errorf("parse not-logged-in page: %w", err))
	}

	logintoken := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if logintoken == "" {
		return loginError(errors.New("could not find login token"))
	}

	res, err = c.Web.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"logintoken": logintoken,
			"username":   username,
			"password":   password,
		}).
		Post(loginEndpoint)
	if err != nil {
		return loginError(fmt.Errorf("login request: %w", err))
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return loginError(fmt.Errorf("parse login response: %w", err))
	}

	if marker := doc.Find(loginErrorSelectors).First(); marker.Length() > 0 {
		return loginError(fmt.Errorf("login rejected: %s", strings.TrimSpace(marker.Text())))
	}
	if res.RawResponse != nil && strings.HasSuffix(res.RawResponse.Request.URL.Path, loginEndpoint) {
		return loginError(errors.New("still on the login page"))
	}

	sesskey := c.getSesskey(doc)
	if sesskey == "" {
		return loginError(errors.New("could not find sesskey"))
	}
	c.Sesskey = sesskey
	return nil
}

var moodleConfigRegex = regexp.MustCompile(`(?m)M\.cfg *= *(.+?);`)

func (c *Client) getSesskey(doc *goquery.Document) string {
	for _, script := range doc.Find("script").Nodes {
		groups := moodleConfigRegex.FindStringSubmatch(htmlutil.GetText(script))
		if len(groups) < 2 {
			continue
		}

		var cfg struct {
			Sesskey string `json:"sesskey"`
		}
		err := json.Unmarshal([]byte(groups[1]), &cfg)
		if err != nil {
			c.tel.ReportBroken(
				report_client_get_sesskey,
				fmt.Errorf("unmarshal moodle config: %w", err),
			)
			return ""
		}
		return cfg.Sesskey
	}
	return ""
}
