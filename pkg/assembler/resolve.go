package assembler

import (
	"fmt"
	"net/url"
	"strings"
)

// splitBaseURL validates a configured base URL and breaks it into the
// parts relative resolution needs.
func splitBaseURL(base string) (scheme, host, path string, err error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", fmt.Errorf("base URL %q must be absolute", base)
	}
	return u.Scheme, u.Host, u.Path, nil
}

// resolveURL turns a directive src into the absolute URL used both for
// fetching and as the cache key:
//
//   - src with a scheme: used verbatim
//   - src with a leading slash: replaces the base URL's path entirely
//   - anything else: appended to the base path with one separating slash
func (e *Engine) resolveURL(src string) (string, error) {
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		return src, nil
	}

	if !e.hasBase {
		return "", fmt.Errorf("relative src %q requires a base URL", src)
	}

	origin := e.baseScheme + "://" + e.baseHost

	if strings.HasPrefix(src, "/") {
		return origin + src, nil
	}

	return origin + strings.TrimSuffix(e.basePath, "/") + "/" + src, nil
}
