package token

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoToken = errors.New("no auth token in cookie store")
	ErrExpired = errors.New("auth token cookie expired")
)

// Source yields the bearer credential used to open the push connection and
// to authorize backend calls. Implementations must be safe for concurrent
// use and must reflect the store's current contents on every call: the
// client reads the credential at connect time, not at construction time.
type Source interface {
	Token() (string, error)
}

// Static is a fixed-credential source, mostly for tests and the mock
// backend.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// CookieFile reads the credential from a Netscape-format cookies.txt file,
// the export format browsers and curl share. The file is re-read on every
// Token call so an out-of-band refresh (the browser re-authenticating) is
// picked up without restarting the feed.
type CookieFile struct {
	Path   string
	Name   string
	Domain string // optional; empty matches any domain

	Now func() time.Time // test hook, defaults to time.Now
}

func (c *CookieFile) Token() (string, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return "", fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	var found bool
	var expired bool
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// domain, include-subdomains, path, secure, expires, name, value
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		if fields[5] != c.Name {
			continue
		}
		if c.Domain != "" && !domainMatch(fields[0], c.Domain) {
			continue
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			if time.Unix(exp, 0).Before(now()) {
				expired = true
				continue
			}
		}
		if fields[6] != "" {
			return fields[6], nil
		}
		found = true
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	if expired && !found {
		return "", ErrExpired
	}
	return "", ErrNoToken
}

func domainMatch(cookieDomain, want string) bool {
	cookieDomain = strings.TrimPrefix(cookieDomain, ".")
	want = strings.TrimPrefix(want, ".")
	return cookieDomain == want || strings.HasSuffix(cookieDomain, "."+want) || strings.HasSuffix(want, "."+cookieDomain)
}
