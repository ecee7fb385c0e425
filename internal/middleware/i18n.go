package middleware

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// supportedLocales are the languages the script providers write marketing
// copy in. Unsupported tags collapse to their primary subtag first and fall
// back to the configured default when that is unsupported too.
var supportedLocales = map[string]struct{}{
	"en": {}, "id": {}, "es": {}, "pt": {}, "de": {}, "fr": {}, "ja": {}, "ko": {},
}

// countryLocales maps a visitor country to a default script language where
// the mapping is unambiguous enough to be useful.
var countryLocales = map[string]string{
	"ID": "id",
	"BR": "pt", "PT": "pt",
	"ES": "es", "MX": "es", "AR": "es", "CO": "es", "CL": "es", "PE": "es",
	"DE": "de", "AT": "de", "CH": "de",
	"FR": "fr",
	"JP": "ja",
	"KR": "ko",
}

// I18N detects the caller's locale and country and stores both in the
// request context. Creation requests that do not name a locale inherit the
// detected one for script and caption generation.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback := normalizeLocale(defaultLocale)
	if fallback == "" {
		fallback = "en"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, fallback, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale applies the precedence order: explicit X-Locale header,
// Accept-Language by quality, the visitor country, then the default.
func detectLocale(r *http.Request, fallback, country string) string {
	if v := normalizeLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if v := preferredLanguage(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	if v, ok := countryLocales[country]; ok {
		return v
	}
	return fallback
}

// preferredLanguage returns the highest-quality supported language from an
// Accept-Language header, or empty when nothing supported is offered.
func preferredLanguage(header string) string {
	type candidate struct {
		locale string
		q      float64
		order  int
	}
	var candidates []candidate
	for i, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		locale := normalizeLocale(fields[0])
		if locale == "" {
			continue
		}
		q := 1.0
		for _, field := range fields[1:] {
			field = strings.TrimSpace(field)
			if value, ok := strings.CutPrefix(field, "q="); ok {
				if parsed, err := strconv.ParseFloat(value, 64); err == nil {
					q = parsed
				}
			}
		}
		if q <= 0 {
			continue
		}
		candidates = append(candidates, candidate{locale: locale, q: q, order: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0].locale
}

// normalizeLocale lowers a BCP 47 tag to its primary subtag and keeps it
// only when a script provider supports it.
func normalizeLocale(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == "*" {
		return ""
	}
	if idx := strings.IndexAny(tag, "-_"); idx > 0 {
		tag = tag[:idx]
	}
	if _, ok := supportedLocales[tag]; !ok {
		return ""
	}
	return tag
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		if first, _, _ := strings.Cut(xf, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the request:
// proxy-provided headers first, then the region subtag of the language
// headers, then the GeoIP lookup when one is configured.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"} {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if region := regionSubtag(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := regionSubtag(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// regionSubtag pulls the first region out of a language header (the US in
// en-US). Two-letter regions only; numeric UN M49 areas are ignored.
func regionSubtag(header string) string {
	for _, part := range strings.Split(header, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if token == "" {
			continue
		}
		pieces := strings.FieldsFunc(token, func(r rune) bool { return r == '-' || r == '_' })
		for _, piece := range pieces[1:] {
			if len(piece) == 2 && isAlpha(piece) {
				return strings.ToUpper(piece)
			}
		}
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
