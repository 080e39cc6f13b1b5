package http

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildURL joins baseURL and the given path segments with single slashes and
// encodes queryParams. Segments are escaped, slashes inside a segment are kept.
func BuildURL(baseURL string, segments []string, queryParams url.Values) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	parts := []string{strings.TrimRight(parsedURL.Path, "/")}
	for _, segment := range segments {
		segment = strings.Trim(segment, "/")
		if segment == "" {
			continue
		}
		parts = append(parts, segment)
	}
	parsedURL.Path = strings.Join(parts, "/")
	parsedURL.RawPath = ""

	if len(queryParams) > 0 {
		parsedURL.RawQuery = queryParams.Encode()
	}

	return parsedURL.String(), nil
}
