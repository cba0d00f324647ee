// Package adapter implements model.PostingSource for public ATS job boards.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amishk599/jobmatch/internal/model"
)

// getJSON fetches url and decodes the JSON body into out. Non-200 responses
// become *model.HTTPError so retry decorators can classify them.
func getJSON(ctx context.Context, client *http.Client, source, key, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s fetch for %s: %w", source, key, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s fetch for %s: %w", source, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s fetch for %s: unexpected status %d", source, key, resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s fetch for %s: decode: %w", source, key, err)
	}
	return nil
}
