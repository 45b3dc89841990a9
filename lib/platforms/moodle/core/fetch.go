package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"moodle-harvest/internal/components/telemetry"

	"go.opentelemetry.io/otel/codes"
)

const report_client_fetch_raw = "client.fetch-raw"

// fetchURL returns the url FetchRaw requests. With a token it is appended as
// a query parameter, a session fetch drops the /webservice prefix that
// token-only file urls carry.
func (c *Client) fetchURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		u = c.BaseUrl.ResolveReference(u)
	}

	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	u.Path = strings.Replace(u.Path, "/webservice/", "/", 1)
	if u.RawPath != "" {
		u.RawPath = strings.Replace(u.RawPath, "/webservice/", "/", 1)
	}
	return u.String(), nil
}

// FetchRaw downloads a page or file served by moodle. It never fails, ok is
// false when the content is unavailable, which is not the same as an empty page.
func (c *Client) FetchRaw(ctx context.Context, raw string) (string, bool) {
	ctx, span := tracer.Start(ctx, "FetchRaw")
	defer span.End()

	target, err := c.fetchURL(raw)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_raw, fmt.Errorf("parse url: %w", err), raw)
		span.SetStatus(codes.Error, "invalid url")
		return "", false
	}

	res, err := c.Web.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch_raw, err, telemetry.RedactURL(target))
		span.SetStatus(codes.Error, "failed to fetch")
		return "", false
	}
	if res.IsError() {
		c.tel.ReportBroken(report_client_fetch_raw, fmt.Errorf("unexpected status %s", res.Status()), telemetry.RedactURL(target))
		span.SetStatus(codes.Error, "unexpected status")
		return "", false
	}
	return res.String(), true
}
