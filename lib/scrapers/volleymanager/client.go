package volleymanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"volleymanager-backend/lib/htmlutil"
	"volleymanager-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	loginPath        = "/login"
	authenticatePath = "/sportmanager.security/authentication/authenticate"
	logoutPath       = "/logout"
	dashboardPath    = "/sportmanager.volleyball/main/dashboard"

	// SessionHeader carries the session id for proxies that cannot forward
	// cookies.
	SessionHeader = "X-Session-Token"

	DefaultCookieDelay = 100 * time.Millisecond
)

type ClientOptions struct {
	BaseUrl string
	// Headers is called before every request, the returned headers are
	// attached to it.
	Headers func() map[string]string
	// OnSessionHeader receives the SessionHeader value of every response
	// that has one.
	OnSessionHeader func(value string)
	// CookieDelay is waited before fetching the dashboard after a successful
	// authenticate, nil means DefaultCookieDelay.
	CookieDelay *time.Duration
	// Logger defaults to a logger that discards everything.
	Logger *slog.Logger
	// Http is an optional preconfigured client, its base url, cookie jar and
	// redirect policy are overwritten.
	Http *resty.Client
	// BypassCloudflare wraps the transport with cloudflare-friendly tls and
	// header settings.
	BypassCloudflare bool
	// RequestsPerSecond limits outgoing requests, 0 means no limit.
	RequestsPerSecond float64
}

// Client holds the http session of a single account, it must not be used
// for two concurrent logins.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	cookieDelay time.Duration
	logger      *slog.Logger
}

type manualRedirectKey struct{}

func redirectPolicy(hostname string) resty.RedirectPolicy {
	domainCheck := resty.DomainCheckRedirectPolicy(hostname)
	limit := resty.FlexibleRedirectPolicy(10)
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if manual, _ := req.Context().Value(manualRedirectKey{}).(bool); manual {
			return http.ErrUseLastResponse
		}
		err := limit.Apply(req, via)
		if err != nil {
			return err
		}
		return domainCheck.Apply(req, via)
	})
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseUrl)
	}

	client := opts.Http
	if client == nil {
		client = resty.New()
		client.SetTimeout(time.Second * 30)
		client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	}
	client.SetBaseURL(strings.TrimSuffix(baseUrl.String(), "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(redirectPolicy(baseUrl.Hostname()))
	if opts.BypassCloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	headers := opts.Headers
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("cache-control", "no-cache")
		req.SetHeader("pragma", "no-cache")
		if headers != nil {
			for k, v := range headers() {
				req.SetHeader(k, v)
			}
		}
		return nil
	})
	if opts.OnSessionHeader != nil {
		onSessionHeader := opts.OnSessionHeader
		client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
			if value := res.Header().Get(SessionHeader); value != "" {
				onSessionHeader(value)
			}
			return nil
		})
	}

	telemetry.InstrumentResty(client, "volleymanager-backend/volleymanager/http")

	cookieDelay := DefaultCookieDelay
	if opts.CookieDelay != nil {
		cookieDelay = *opts.CookieDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}

	return &Client{
		BaseUrl:     baseUrl,
		Http:        client,
		cookieDelay: cookieDelay,
		logger:      logger,
	}, nil
}

// Login runs the whole browser login conversation. Every returned error is
// an *AuthError.
func (c *Client) Login(ctx context.Context, username, password string) (result LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			result = LoginResult{}
			err = networkError(fmt.Errorf("%v", recovered))
		}

		outcome := "success"
		if err != nil {
			authErr, ok := err.(*AuthError)
			if !ok {
				authErr = networkError(err)
				err = authErr
			}
			outcome = authErr.Kind.String()
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			c.logger.Warn("login failed", "kind", outcome, "err", err)
		} else {
			c.logger.Info("login succeeded")
		}
		loginOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	return c.login(ctx, username, password)
}

func (c *Client) login(ctx context.Context, username, password string) (LoginResult, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		return LoginResult{}, newAuthError(KIND_LOGIN_PAGE_UNAVAILABLE, messageLoginPageUnavailable, err)
	}
	if !res.IsSuccess() {
		return LoginResult{}, newAuthError(
			KIND_LOGIN_PAGE_UNAVAILABLE,
			messageLoginPageUnavailable,
			fmt.Errorf("login page status %d", res.StatusCode()),
		)
	}

	doc := htmlutil.ParseDocument(res.String())
	if doc != nil && extractSessionToken(doc) != "" {
		c.logger.Info("already authenticated, skipping credential submission")
		return c.fetchDashboard(ctx)
	}

	var fields *LoginFormFields
	if doc != nil {
		fields = extractLoginFormFields(doc)
	}
	if fields == nil {
		return LoginResult{}, newAuthError(KIND_MALFORMED_LOGIN_PAGE, messageMalformedLoginPage, nil)
	}

	res, err = c.Http.R().
		SetContext(context.WithValue(ctx, manualRedirectKey{}, true)).
		SetFormData(fields.formData(username, password)).
		Post(authenticatePath)
	if err != nil {
		return LoginResult{}, networkError(fmt.Errorf("authenticate request: %w", err))
	}

	return c.interpretAuthenticate(ctx, res)
}

type proxyLoginResponse struct {
	Success     *bool  `json:"success"`
	RedirectUrl string `json:"redirectUrl"`
}

// interpretAuthenticate branches on the authenticate response, the first
// matching shape wins.
func (c *Client) interpretAuthenticate(ctx context.Context, res *resty.Response) (LoginResult, error) {
	status := res.StatusCode()

	if status == http.StatusLocked {
		return LoginResult{}, parseLockout(res.Body())
	}

	if strings.Contains(strings.ToLower(res.Header().Get("content-type")), "application/json") {
		var payload proxyLoginResponse
		err := json.Unmarshal(res.Body(), &payload)
		if err == nil && payload.Success != nil {
			if !*payload.Success {
				return LoginResult{}, newAuthError(KIND_INVALID_CREDENTIALS, messageInvalidCredentials, nil)
			}
			c.logger.Info("authenticate returned json success", "redirect", payload.RedirectUrl)
			return c.fetchDashboard(ctx)
		}
		c.logger.Warn("authenticate returned unreadable json", "status", status)
	}

	if status >= 300 && status < 400 {
		location, ok := redirectLocation(res)
		if !ok {
			c.logger.Info("authenticate returned an opaque redirect", "status", status)
			result, err := c.fetchDashboard(ctx)
			if err != nil {
				return LoginResult{}, newAuthError(KIND_DASHBOARD_UNREACHABLE, messageDashboardUnreachable, err)
			}
			return result, nil
		}
		if strings.Contains(location.Path, dashboardPath) {
			return c.fetchDashboard(ctx)
		}
		c.logger.Warn("authenticate redirected elsewhere", "location", location.String())
	}

	doc := htmlutil.ParseDocument(res.String())
	if doc != nil && classify(doc) == pageDashboard {
		return LoginResult{
			CsrfToken:     extractSessionToken(doc),
			DashboardHtml: string(res.Body()),
			ActiveParty:   extractActiveParty(doc, DefaultPartyMatchers()),
		}, nil
	}

	analysis := AnalyzeResponse(res.String())
	switch {
	case analysis.HasAuthError:
		return LoginResult{}, newAuthError(KIND_INVALID_CREDENTIALS, messageInvalidCredentials, nil)
	case analysis.HasTfaPage:
		return LoginResult{}, newAuthError(KIND_TWO_FACTOR_UNSUPPORTED, messageTwoFactorUnsupported, nil)
	}
	return LoginResult{}, newAuthError(
		KIND_LOGIN_FAILED,
		messageLoginFailed,
		fmt.Errorf("unrecognized authenticate response, status %d", status),
	)
}

// redirectLocation returns false when the target of a redirect can't be
// read, which is treated like a browser's opaque redirect.
func redirectLocation(res *resty.Response) (*url.URL, bool) {
	raw := strings.TrimSpace(res.Header().Get("location"))
	if raw == "" {
		return nil, false
	}
	location, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return location, true
}

// lockoutPayload fields are decoded one by one so a field of an unexpected
// type does not lose the others.
type lockoutPayload struct {
	Message                json.RawMessage `json:"message"`
	LockedUntil            json.RawMessage `json:"lockedUntil"`
	LockoutDurationMinutes json.RawMessage `json:"lockoutDurationMinutes"`
}

func parseLockout(body []byte) *AuthError {
	authErr := newAuthError(KIND_LOCKED, messageLocked, nil)

	var payload lockoutPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		authErr.Err = fmt.Errorf("parse lockout payload: %w", err)
		return authErr
	}

	var message string
	if json.Unmarshal(payload.Message, &message) == nil {
		if message = htmlutil.CleanText(message); message != "" {
			authErr.Message = message
		}
	}
	if until, ok := parseLockedUntil(payload.LockedUntil); ok {
		authErr.LockedUntil = &until
	}
	var minutes int
	if json.Unmarshal(payload.LockoutDurationMinutes, &minutes) == nil && minutes > 0 {
		authErr.LockoutMinutes = minutes
	}
	return authErr
}

// parseLockedUntil accepts an RFC3339 string or epoch milliseconds.
func parseLockedUntil(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		until, err := time.Parse(time.RFC3339, strings.TrimSpace(text))
		return until, err == nil
	}
	var millis int64
	if json.Unmarshal(raw, &millis) == nil && millis > 0 {
		return time.UnixMilli(millis), true
	}
	return time.Time{}, false
}

func (c *Client) waitForCookies(ctx context.Context) error {
	if c.cookieDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cookieDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) fetchDashboard(ctx context.Context) (LoginResult, error) {
	ctx, span := tracer.Start(ctx, "client:fetchDashboard")
	defer span.End()

	err := c.waitForCookies(ctx)
	if err != nil {
		return LoginResult{}, newAuthError(KIND_DASHBOARD_UNREACHABLE, messageDashboardUnreachable, err)
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(dashboardPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch dashboard")
		return LoginResult{}, newAuthError(KIND_DASHBOARD_UNREACHABLE, messageDashboardUnreachable, err)
	}
	if !res.IsSuccess() {
		span.SetStatus(codes.Error, "dashboard returned non-2xx")
		return LoginResult{}, newAuthError(
			KIND_DASHBOARD_UNREACHABLE,
			messageDashboardUnreachable,
			fmt.Errorf("dashboard status %d", res.StatusCode()),
		)
	}

	html := string(res.Body())
	doc := htmlutil.ParseDocument(html)
	token := extractSessionToken(doc)
	if token == "" {
		span.SetStatus(codes.Error, "dashboard has no session token")
		return LoginResult{}, newAuthError(KIND_SESSION_NOT_ESTABLISHED, messageSessionNotEstablished, nil)
	}

	return LoginResult{
		CsrfToken:     token,
		DashboardHtml: html,
		ActiveParty:   extractActiveParty(doc, DefaultPartyMatchers()),
	}, nil
}

// Logout is best effort, failures are only logged.
func (c *Client) Logout(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Post(logoutPath)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("logout request failed", "err", err)
		return
	}
	if res.IsError() {
		c.logger.Warn("logout returned an error status", "status", res.StatusCode())
		return
	}
	c.logger.Info("logged out")
}

// CheckSession reports whether the cookies of this client still carry a
// live session. A transport failure is returned as a KIND_NETWORK AuthError
// alongside an invalid status.
func (c *Client) CheckSession(ctx context.Context) (status SessionStatus, err error) {
	ctx, span := tracer.Start(ctx, "client:CheckSession")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			status = SessionStatus{}
			err = networkError(fmt.Errorf("%v", recovered))
		}
		sessionChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", status.Valid)))
	}()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(dashboardPath)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("session check failed", "err", err)
		return SessionStatus{}, networkError(err)
	}
	if !res.IsSuccess() {
		c.logger.Info("session check returned non-2xx", "status", res.StatusCode())
		return SessionStatus{}, nil
	}

	doc := htmlutil.ParseDocument(res.String())
	if classify(doc) == pageLogin {
		c.logger.Info("session expired, dashboard rendered the login page")
		return SessionStatus{}, nil
	}

	return SessionStatus{
		Valid:       true,
		CsrfToken:   extractSessionToken(doc),
		ActiveParty: extractActiveParty(doc, DefaultPartyMatchers()),
	}, nil
}

// SessionCookies returns the cookies the backend has set for the base url.
func (c *Client) SessionCookies() []*http.Cookie {
	return c.Http.GetClient().Jar.Cookies(c.BaseUrl)
}

// RestoreSessionCookies resumes a session saved with SessionCookies.
func (c *Client) RestoreSessionCookies(cookies []*http.Cookie) {
	c.Http.GetClient().Jar.SetCookies(c.BaseUrl, cookies)
}
