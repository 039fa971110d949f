package query

import (
	"net/url"
	"regexp"
	"strings"
)

// QueryField is the URL parameter carrying a raw query.
const QueryField = "q"

// internalPrefix is the relative form of a linker URL: /?q=...
const internalPrefix = "/?"

var moduleWord = regexp.MustCompile(`^[a-z]+$`)

// ResolveURL turns a bare query such as "go mr 5" into its relative linker
// URL (/?q=go+mr+5). Anything whose first word is not all lowercase
// letters is returned unchanged.
func ResolveURL(raw string) string {
	first, _, _ := strings.Cut(raw, " ")
	if moduleWord.MatchString(first) {
		return internalPrefix + url.Values{QueryField: {raw}}.Encode()
	}
	return raw
}

// ExtractChainQuery reports the nested query carried by an internal URL.
// A URL is internal when it is relative (/?q=...) or when it is absolute,
// shares origin with the caller, has the root path and a q parameter.
// Unparseable URLs are never internal.
func ExtractChainQuery(resolved, origin string) (string, bool) {
	if strings.HasPrefix(resolved, internalPrefix) {
		values, _ := url.ParseQuery(resolved[len(internalPrefix):])
		return firstValue(values)
	}

	if origin == "" {
		return "", false
	}

	u, err := url.Parse(resolved)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if Origin(u) != normalizeOrigin(origin) {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}

	return firstValue(u.Query())
}

// Origin returns scheme://host for u, lowercased and without the default
// port for the scheme.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

func normalizeOrigin(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimSuffix(origin, "/")
	}
	return Origin(u)
}

func firstValue(values url.Values) (string, bool) {
	v, ok := values[QueryField]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// BuildBrowserURL returns a search-engine style URL for a condition, to be
// registered as a browser keyword shortcut.
func BuildBrowserURL(origin, key string) string {
	return strings.TrimSuffix(origin, "/") + "/?q=go+" + EncodeURIComponent(key) + "+" + PositionalToken
}

// BuildLookupURL is BuildBrowserURL for a table.
func BuildLookupURL(origin, key string) string {
	return strings.TrimSuffix(origin, "/") + "/?q=find+" + EncodeURIComponent(key) + "+" + PositionalToken
}
