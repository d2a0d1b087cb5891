package news

import (
	"errors"
	"net"
	"net/url"
	"sort"
	"strings"
)

var ErrInvalidURL = errors.New("not an absolute http(s) URL")

// Query keys that only carry campaign or click tracking.
var trackingKeys = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"dclid":    true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref":      true,
	"ref_src":  true,
	"igshid":   true,
	"yclid":    true,
	"_hsenc":   true,
	"_hsmi":    true,
	"mkt_tok":  true,
	"cmpid":    true,
	"ncid":     true,
	"sr_share": true,
}

// NormalizeURL canonicalizes a link for identity comparison: lower-case
// scheme and host, no default port, no fragment, no tracking parameters,
// sorted query, no trailing slash.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || trackingKeys[lk] {
			q.Del(key)
		}
	}

	path := u.EscapedPath()
	path = strings.TrimRight(path, "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(encodeSorted(q))
	}
	return b.String(), nil
}

func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
