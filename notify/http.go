package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

func newRestyClient() *resty.Client {
	return resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "patreon-tier-notifier/1.0")
}

// checkResponse turns non-2xx gateway responses into errors.
func checkResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	body := resp.String()
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), body)
}
