package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"shiftcal/internal/config"
	appLog "shiftcal/internal/log"
)

// TimePool is an ASP.NET application: the login form carries opaque
// hidden state fields (__VIEWSTATE and friends) that must be echoed back
// verbatim, and the visible fields use the generated control names below.
const (
	fieldUsername = "ctl00$ContentMain$txtUserName"
	fieldPassword = "ctl00$ContentMain$txtPassword"
	fieldSubmit   = "ctl00$ContentMain$btnLogin"
	submitLabel   = "Logga in"

	validationSummaryID = "ctl00_ContentMain_ValidationSummary1"
)

// FetchError indicates the portal was unreachable or returned a
// non-success status.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthError indicates a structurally failed login: the portal served the
// login page back instead of redirecting away from it.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "login failed: " + e.Reason
}

// Client talks to the TimePool portal. It performs the form login and
// fetches schedule pages; it never retries internally, that policy
// belongs to the caller.
type Client struct {
	base *url.URL
	cfg  config.PortalConfig
	http *resty.Client
}

func NewClient(cfg config.PortalConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal base url: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(30 * time.Second)

	return &Client{
		base: base,
		cfg:  cfg,
		http: client,
	}, nil
}

// Host returns the portal host used for identity keys.
func (c *Client) Host() string {
	return c.base.Hostname()
}

// Session is an authenticated portal session. It owns the login cookies
// for one scrape cycle and is discarded afterwards.
type Session struct {
	http *resty.Client
	cfg  config.PortalConfig
}

// Login performs the ASP.NET form login exchange.
//
// The login page is fetched first to collect every hidden input, since
// the portal embeds anti-forgery state whose names and values are opaque.
// Those are forwarded verbatim together with the credential fields.
// Success is structural: a final URL still pointing at the login page
// means failure regardless of status code, and the page's validation
// summary supplies the reason when it is visible.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(c.cfg.LoginPath)
	if err != nil {
		return nil, &FetchError{URL: c.cfg.LoginPath, Err: err}
	}
	if res.StatusCode() != 200 {
		return nil, &FetchError{URL: c.cfg.LoginPath, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}

	fields := hiddenFields(doc)
	fields[fieldUsername] = c.cfg.Username
	fields[fieldPassword] = c.cfg.Password
	fields[fieldSubmit] = submitLabel

	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("Referer", c.cfg.BaseURL+c.cfg.LoginPath).
		SetFormData(fields).
		Post(c.cfg.LoginPath)
	if err != nil {
		return nil, &FetchError{URL: c.cfg.LoginPath, Err: err}
	}
	if res.StatusCode() != 200 {
		return nil, &FetchError{URL: c.cfg.LoginPath, Status: res.StatusCode()}
	}

	finalURL := res.RawResponse.Request.URL
	if stillOnLoginPage(finalURL, c.cfg.LoginPath) {
		return nil, &AuthError{Reason: loginFailureReason(res.Body())}
	}

	appLog.Info("logged in to portal", "host", c.base.Hostname(), "final_path", finalURL.Path)
	return &Session{http: c.http, cfg: c.cfg}, nil
}

// hiddenFields collects every hidden input's name/value pair. No schema
// is assumed beyond "name attribute present".
func hiddenFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find("input[type='hidden']").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		fields[name] = s.AttrOr("value", "")
	})
	return fields
}

func stillOnLoginPage(final *url.URL, loginPath string) bool {
	base := path.Base(loginPath)
	return strings.Contains(strings.ToLower(final.Path), strings.ToLower(base))
}

// loginFailureReason extracts the portal's validation message from a
// failed login response, falling back to a generic reason.
func loginFailureReason(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "still on login page"
	}
	summary := doc.Find("div#" + validationSummaryID).First()
	if summary.Length() > 0 && summary.AttrOr("style", "") != "display:none;" {
		if text := strings.TrimSpace(summary.Text()); text != "" {
			return text
		}
	}
	return "still on login page"
}

// FetchSchedule retrieves the schedule page showing the week that
// contains day, parsed and ready for extraction.
func (s *Session) FetchSchedule(ctx context.Context, day time.Time) (*goquery.Document, error) {
	res, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("Date", day.Format("2006-01-02")+" 00:00:00").
		Get(s.cfg.SchedulePath)
	if err != nil {
		return nil, &FetchError{URL: s.cfg.SchedulePath, Err: err}
	}
	if res.StatusCode() != 200 {
		return nil, &FetchError{URL: s.cfg.SchedulePath, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse schedule page: %w", err)
	}
	return doc, nil
}
