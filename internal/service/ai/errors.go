package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// rateLimitMarkers match the text of untyped upstream errors. A bare "429"
// is not enough: request ids and timestamps contain it too.
var rateLimitMarkers = []string{"status code: 429", "status 429", "too many requests", "rate limit", "ratelimit"}

// classifyError tags upstream throttling with diagnosis.ErrRateLimited and
// leaves every other error untouched.
func classifyError(err error) error {
	if err == nil || errors.Is(err, diagnosis.ErrRateLimited) {
		return err
	}
	if isRateLimited(err) {
		return fmt.Errorf("%w: %v", diagnosis.ErrRateLimited, err)
	}
	return err
}

func isRateLimited(err error) bool {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
