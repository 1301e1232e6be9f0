package sessioncache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"volleymanager-backend/lib/scrapers/volleymanager"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Session is a logged in client together with the result of its login.
type Session struct {
	Client *volleymanager.Client
	Login  volleymanager.LoginResult
}

type NewClientFunc func() (*volleymanager.Client, error)

// Cache keeps one logged in client per account. Logins for the same
// account are serialized since the backend session is shared between them.
type Cache struct {
	cache     *expirable.LRU[string, Session]
	newClient NewClientFunc

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(size int, ttl time.Duration, newClient NewClientFunc) *Cache {
	return &Cache{
		cache: expirable.NewLRU[string, Session](size, func(username string, s Session) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
				defer cancel()
				slog.Debug("logging out evicted session", "username", username)
				s.Client.Logout(ctx)
			}()
		}, ttl),
		newClient: newClient,
		locks:     map[string]*sync.Mutex{},
	}
}

func (c *Cache) lockFor(username string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	lock, ok := c.locks[username]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[username] = lock
	}
	return lock
}

// Get returns the cached session of username if it is still valid,
// otherwise it logs in again.
func (c *Cache) Get(ctx context.Context, username, password string) (Session, error) {
	lock := c.lockFor(username)
	lock.Lock()
	defer lock.Unlock()

	cached, hit := c.cache.Get(username)
	if hit {
		status, err := cached.Client.CheckSession(ctx)
		if err == nil && status.Valid {
			if status.CsrfToken != "" {
				cached.Login.CsrfToken = status.CsrfToken
			}
			if status.ActiveParty != nil {
				cached.Login.ActiveParty = status.ActiveParty
			}
			return cached, nil
		}
		slog.InfoContext(ctx, "cached session no longer valid", "username", username, "err", err)
		c.cache.Remove(username)
	}

	client, err := c.newClient()
	if err != nil {
		return Session{}, err
	}
	result, err := client.Login(ctx, username, password)
	if err != nil {
		return Session{}, err
	}

	session := Session{Client: client, Login: result}
	c.cache.Add(username, session)
	return session, nil
}

// Resume seeds the cache with a session saved by an earlier process, it
// reports whether the saved cookies still carry a live session.
func (c *Cache) Resume(ctx context.Context, username string, cookies []*http.Cookie) (bool, error) {
	lock := c.lockFor(username)
	lock.Lock()
	defer lock.Unlock()

	if _, hit := c.cache.Peek(username); hit {
		return true, nil
	}
	if len(cookies) == 0 {
		return false, nil
	}

	client, err := c.newClient()
	if err != nil {
		return false, err
	}
	client.RestoreSessionCookies(cookies)
	status, err := client.CheckSession(ctx)
	if err != nil {
		return false, err
	}
	if !status.Valid {
		return false, nil
	}

	c.cache.Add(username, Session{
		Client: client,
		Login: volleymanager.LoginResult{
			CsrfToken:   status.CsrfToken,
			ActiveParty: status.ActiveParty,
		},
	})
	return true, nil
}

// Evict drops the session of username, logging it out in the background.
func (c *Cache) Evict(username string) {
	lock := c.lockFor(username)
	lock.Lock()
	defer lock.Unlock()
	c.cache.Remove(username)
}

func (c *Cache) Len() int {
	return c.cache.Len()
}
