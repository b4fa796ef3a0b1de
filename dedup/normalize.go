// Package dedup derives the natural keys used for idempotent persistence and
// provides a Redis-backed fast path for spotting recently seen items.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// NaturalKey returns the stable dedup key for a source URL: a SHA-256 hex
// digest of the normalized URL. Two crawls of the same page produce the same
// key even when tracking parameters differ.
func NaturalKey(rawURL string) string {
	h := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return hex.EncodeToString(h[:])
}

// NormalizeURL canonicalizes a URL for keying: lowercase scheme and host,
// fragment removed, common tracking query parameters (utm_*, fbclid, gclid,
// ref) stripped, remaining parameters sorted, trailing slash trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" || lk == "ref" {
			q.Del(k)
		}
	}
	u.RawQuery = encodeSorted(q)

	s := u.String()
	return strings.TrimSuffix(s, "/")
}

// encodeSorted renders query values with sorted keys so parameter order
// never changes the key.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
