package volleymanager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
	"volleymanager-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeBackend serves the four backend endpoints, every handler can be
// swapped per test.
type fakeBackend struct {
	loginPage    http.HandlerFunc
	authenticate http.HandlerFunc
	dashboard    http.HandlerFunc
	logout       http.HandlerFunc

	authenticateHits atomic.Int32
	logoutHits       atomic.Int32
	lastForm         atomic.Value
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		loginPage: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(loginPageHtml))
		},
		authenticate: func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "Neos_Flow_Session", Value: "session-1", Path: "/"})
			w.Header().Set("location", dashboardPath)
			w.WriteHeader(http.StatusSeeOther)
		},
		dashboard: func(w http.ResponseWriter, r *http.Request) {
			_, err := r.Cookie("Neos_Flow_Session")
			if err != nil {
				w.Write([]byte(loginPageHtml))
				return
			}
			w.Write([]byte(dashboardHtml))
		},
		logout: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}
}

func (b *fakeBackend) start(t testing.TB) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		b.loginPage(w, r)
	})
	mux.HandleFunc(authenticatePath, func(w http.ResponseWriter, r *http.Request) {
		b.authenticateHits.Add(1)
		err := r.ParseForm()
		if err != nil {
			t.Error(err)
		}
		b.lastForm.Store(r.PostForm)
		b.authenticate(w, r)
	})
	mux.HandleFunc(dashboardPath, func(w http.ResponseWriter, r *http.Request) {
		b.dashboard(w, r)
	})
	mux.HandleFunc(logoutPath, func(w http.ResponseWriter, r *http.Request) {
		b.logoutHits.Add(1)
		b.logout(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t testing.TB, baseUrl string, opts ...func(*ClientOptions)) *Client {
	noDelay := time.Duration(0)
	options := ClientOptions{
		BaseUrl:     baseUrl,
		CookieDelay: &noDelay,
	}
	for _, o := range opts {
		o(&options)
	}
	client, err := NewClient(options)
	require.NoError(t, err)
	return client
}

func requireAuthError(t testing.TB, err error, kind ErrorKind) *AuthError {
	t.Helper()
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %T", err)
	require.Equal(t, kind.String(), authErr.Kind.String())
	return authErr
}

func TestMain(m *testing.M) {
	telemetry.InitSlog(false)
	m.Run()
}

func TestLoginRedirectToDashboard(t *testing.T) {
	backend := newFakeBackend()
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	result, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "dash-token-4c1a", result.CsrfToken)
	require.Equal(t, dashboardHtml, result.DashboardHtml)
	require.NotNil(t, result.ActiveParty)
	require.Equal(t, "party-7", result.ActiveParty.Identity)

	form := backend.lastForm.Load().(url.Values)
	require.Equal(t, []string{"login-csrf-8f2e"}, form[fieldCsrfToken])
	require.Equal(t, []string{"YTowOnt9b5a0d1e2"}, form[fieldReferrerArguments])
	require.Equal(t, []string{"a:0:{}7f1c"}, form[fieldTrustedProperties])
	require.Equal(t, []string{"referee@example.ch"}, form[fieldUsername])
	require.Equal(t, []string{"s3cret"}, form[fieldPassword])
}

func TestLoginInvalidCredentials(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<v-alert type="error" color="error">Login fehlgeschlagen</v-alert>` + loginPageHtml))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "wrong")
	authErr := requireAuthError(t, err, KIND_INVALID_CREDENTIALS)
	require.Equal(t, "Invalid username or password", authErr.Error())
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.False(t, authErr.Retryable())
}

func TestLoginLocked(t *testing.T) {
	cases := []struct {
		name            string
		contentType     string
		body            string
		expectedMessage string
		expectUntil     bool
		expectMinutes   int
	}{
		{
			name:            "json payload",
			contentType:     "application/json",
			body:            `{"message":"Account locked","lockedUntil":"2026-10-17T12:30:00Z","lockoutDurationMinutes":15}`,
			expectedMessage: "Account locked",
			expectUntil:     true,
			expectMinutes:   15,
		},
		{
			name:            "epoch milliseconds",
			contentType:     "application/json",
			body:            `{"message":"Konto gesperrt","lockedUntil":1792240200000}`,
			expectedMessage: "Konto gesperrt",
			expectUntil:     true,
		},
		{
			name:            "mistyped fields keep the message",
			contentType:     "application/json",
			body:            `{"message":"Konto gesperrt","lockedUntil":true,"lockoutDurationMinutes":"15"}`,
			expectedMessage: "Konto gesperrt",
		},
		{
			name:            "unparseable payload",
			contentType:     "text/html",
			body:            "<h1>locked</h1>",
			expectedMessage: messageLocked,
		},
		{
			name:            "body looks like invalid credentials",
			contentType:     "text/html",
			body:            `<v-alert color="error">Invalid username or password</v-alert>`,
			expectedMessage: messageLocked,
		},
		{
			name:            "json success flag",
			contentType:     "application/json",
			body:            `{"success":false}`,
			expectedMessage: messageLocked,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("content-type", test.contentType)
				w.WriteHeader(http.StatusLocked)
				w.Write([]byte(test.body))
			}
			srv := backend.start(t)
			client := newTestClient(t, srv.URL)

			_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
			authErr := requireAuthError(t, err, KIND_LOCKED)
			require.NotErrorIs(t, err, ErrInvalidCredentials)
			require.Equal(t, test.expectedMessage, authErr.Message)
			require.Equal(t, test.expectMinutes, authErr.LockoutMinutes)
			if test.expectUntil {
				require.NotNil(t, authErr.LockedUntil)
				require.Equal(t, time.Date(2026, 10, 17, 12, 30, 0, 0, time.UTC), authErr.LockedUntil.UTC())
			} else {
				require.Nil(t, authErr.LockedUntil)
			}
		})
	}
}

func TestLoginJsonProxyResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "Neos_Flow_Session", Value: "session-1", Path: "/"})
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.Write([]byte(`{"success":true,"redirectUrl":"/sportmanager.volleyball/main/dashboard"}`))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	result, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "dash-token-4c1a", result.CsrfToken)

	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"success":false}`))
	}
	client = newTestClient(t, srv.URL)
	_, err = client.Login(context.Background(), "referee@example.ch", "wrong")
	requireAuthError(t, err, KIND_INVALID_CREDENTIALS)
}

func TestLoginOpaqueRedirect(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "Neos_Flow_Session", Value: "session-1", Path: "/"})
		w.WriteHeader(http.StatusFound)
	}
	srv := backend.start(t)

	client := newTestClient(t, srv.URL)
	result, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "dash-token-4c1a", result.CsrfToken)

	backend.dashboard = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>dashboard without a token</body></html>"))
	}
	client = newTestClient(t, srv.URL)
	_, err = client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr := requireAuthError(t, err, KIND_DASHBOARD_UNREACHABLE)
	require.Equal(t, messageDashboardUnreachable, authErr.Error())
}

func TestLoginDashboardWithoutToken(t *testing.T) {
	backend := newFakeBackend()
	backend.dashboard = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>no token here</body></html>"))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr := requireAuthError(t, err, KIND_SESSION_NOT_ESTABLISHED)
	require.Equal(t, messageSessionNotEstablished, authErr.Error())
}

func TestLoginDashboardInBody(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dashboardHtml))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	result, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "dash-token-4c1a", result.CsrfToken)
	require.Equal(t, dashboardHtml, result.DashboardHtml)
}

func TestLoginTwoFactor(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<form><input name="secondFactorToken"></form>`))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	requireAuthError(t, err, KIND_TWO_FACTOR_UNSUPPORTED)
}

func TestLoginUnrecognizedResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("location", "/somewhere/else")
		w.WriteHeader(http.StatusFound)
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr := requireAuthError(t, err, KIND_LOGIN_FAILED)
	require.Equal(t, messageLoginFailed, authErr.Error())
}

func TestLoginPageFailures(t *testing.T) {
	backend := newFakeBackend()
	backend.loginPage = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr := requireAuthError(t, err, KIND_LOGIN_PAGE_UNAVAILABLE)
	require.Equal(t, messageLoginPageUnavailable, authErr.Error())

	backend.loginPage = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Wartungsarbeiten</p></body></html>"))
	}
	_, err = client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr = requireAuthError(t, err, KIND_MALFORMED_LOGIN_PAGE)
	require.Equal(t, messageMalformedLoginPage, authErr.Error())
	require.Equal(t, int32(0), backend.authenticateHits.Load())

	srv.Close()
	_, err = client.Login(context.Background(), "referee@example.ch", "s3cret")
	requireAuthError(t, err, KIND_LOGIN_PAGE_UNAVAILABLE)
}

func TestLoginAlreadyAuthenticated(t *testing.T) {
	backend := newFakeBackend()
	backend.loginPage = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dashboardHtml))
	}
	backend.dashboard = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dashboardHtml))
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	result, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "dash-token-4c1a", result.CsrfToken)
	require.Equal(t, int32(0), backend.authenticateHits.Load())
}

func TestLoginAuthenticateConnectionDropped(t *testing.T) {
	backend := newFakeBackend()
	backend.authenticate = func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Error(err)
			return
		}
		conn.Close()
	}
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	authErr := requireAuthError(t, err, KIND_NETWORK)
	require.NotEmpty(t, authErr.Message)
	require.True(t, authErr.Retryable())
}

func TestLoginCookieDelay(t *testing.T) {
	backend := newFakeBackend()
	srv := backend.start(t)

	delay := 50 * time.Millisecond
	client := newTestClient(t, srv.URL, func(o *ClientOptions) {
		o.CookieDelay = &delay
	})

	start := time.Now()
	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), delay)
}

func TestClientHeaders(t *testing.T) {
	backend := newFakeBackend()
	var sawHeaders atomic.Bool
	backend.loginPage = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-proxy-session") == "proxy-1" && r.Header.Get("cache-control") == "no-cache" {
			sawHeaders.Store(true)
		}
		w.Header().Set(SessionHeader, "captured-session")
		w.Write([]byte(loginPageHtml))
	}
	srv := backend.start(t)

	var captured atomic.Value
	client := newTestClient(t, srv.URL, func(o *ClientOptions) {
		o.Headers = func() map[string]string {
			return map[string]string{"x-proxy-session": "proxy-1"}
		}
		o.OnSessionHeader = func(value string) {
			captured.Store(value)
		}
	})

	_, err := client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	require.True(t, sawHeaders.Load())
	require.Equal(t, "captured-session", captured.Load())
}

func TestCheckSession(t *testing.T) {
	backend := newFakeBackend()
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	// no cookie yet, the dashboard renders the login page with a 200
	status, err := client.CheckSession(context.Background())
	require.NoError(t, err)
	require.False(t, status.Valid)

	_, err = client.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)

	status, err = client.CheckSession(context.Background())
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, "dash-token-4c1a", status.CsrfToken)
	require.NotNil(t, status.ActiveParty)
	require.Equal(t, "party-7", status.ActiveParty.Identity)

	backend.dashboard = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	status, err = client.CheckSession(context.Background())
	require.NoError(t, err)
	require.False(t, status.Valid)

	srv.Close()
	status, err = client.CheckSession(context.Background())
	requireAuthError(t, err, KIND_NETWORK)
	require.False(t, status.Valid)
}

func TestLogout(t *testing.T) {
	backend := newFakeBackend()
	srv := backend.start(t)
	client := newTestClient(t, srv.URL)

	client.Logout(context.Background())
	require.Equal(t, int32(1), backend.logoutHits.Load())

	backend.logout = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	client.Logout(context.Background())
	require.Equal(t, int32(2), backend.logoutHits.Load())

	srv.Close()
	require.NotPanics(t, func() {
		client.Logout(context.Background())
	})
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := NewClient(ClientOptions{BaseUrl: "/relative"})
	require.Error(t, err)
}

func TestRestoreSessionCookies(t *testing.T) {
	backend := newFakeBackend()
	srv := backend.start(t)

	first := newTestClient(t, srv.URL)
	_, err := first.Login(context.Background(), "referee@example.ch", "s3cret")
	require.NoError(t, err)
	cookies := first.SessionCookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "session-1", cookies[0].Value)

	second := newTestClient(t, srv.URL)
	status, err := second.CheckSession(context.Background())
	require.NoError(t, err)
	require.False(t, status.Valid)

	second.RestoreSessionCookies(cookies)
	status, err = second.CheckSession(context.Background())
	require.NoError(t, err)
	require.True(t, status.Valid)
	require.Equal(t, "dash-token-4c1a", status.CsrfToken)
	require.Equal(t, int32(1), backend.authenticateHits.Load())
}
