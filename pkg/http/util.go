package http

import (
	"fmt"
	"net/url"
)

// BuildURL joins the already-escaped path segments onto baseURL and sets the
// query parameters. Segments coming from user input should go through
// url.PathEscape first.
func BuildURL(baseURL string, segments []string, queryParams map[string]string) (string, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	parsedURL = parsedURL.JoinPath(segments...)

	q := url.Values{}
	for key, value := range queryParams {
		q.Set(key, value)
	}
	parsedURL.RawQuery = q.Encode()

	return parsedURL.String(), nil
}
