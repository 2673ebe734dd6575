package scraper

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/shopcrawl/models"
)

// classifyError maps a raw fetch outcome onto the failure taxonomy. A nil
// result means the page should go on to the anti-bot guard. Statuses the
// guard understands (403, 429, 503) are left to it.
func classifyError(err error, statusCode int) error {
	if err != nil {
		return classifyFetchError(err)
	}

	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return fmt.Errorf("%w: http status %d", models.ErrNotFound, statusCode)
	case statusCode == http.StatusServiceUnavailable:
		return nil
	case statusCode >= http.StatusInternalServerError:
		return models.NetworkError{Err: fmt.Errorf("http status %d", statusCode)}
	}
	return nil
}

func classifyFetchError(err error) error {
	switch models.KindOf(err) {
	case models.ErrorUnknown:
	case models.ErrorCancelled:
		return err
	case models.ErrorTimeout:
		var timeout models.TimeoutError
		if errors.As(err, &timeout) {
			return err
		}
		return models.TimeoutError{Err: err}
	default:
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.TimeoutError{Err: err}
	}
	return models.NetworkError{Err: err}
}

func errorTypeLabel(err error) string {
	return string(models.KindOf(err))
}
