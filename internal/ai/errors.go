package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"documind/models"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classify wraps a provider error with ErrTransientProvider or
// ErrProviderRejected. Caller cancellation and already classified errors
// pass through unchanged.
func Classify(provider string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrTransientProvider), errors.Is(err, models.ErrProviderRejected):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case IsTransient(err):
		return fmt.Errorf("%s: %w: %w", provider, models.ErrTransientProvider, err)
	default:
		return fmt.Errorf("%s: %w: %w", provider, models.ErrProviderRejected, err)
	}
}

// IsTransient reports rate limits, timeouts, 5xx responses, connection
// failures and open circuit breakers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code, ok := httpStatus(err); ok {
		return code == 408 || code == 429 || code >= 500
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return IsRateLimitError(err) || hasTransientMarker(err)
}

// IsRateLimitError matches the rate limit shapes providers put in messages.
func IsRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

func hasTransientMarker(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "temporarily unavailable", "connection reset", "connection refused", "unexpected eof", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// statusCoder is implemented by REST clients outside the provider SDKs,
// such as the Qdrant index.
type statusCoder interface {
	HTTPStatus() int
}

func httpStatus(err error) (int, bool) {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) && oaAPI.HTTPStatusCode != 0 {
		return oaAPI.HTTPStatusCode, true
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) && oaReq.HTTPStatusCode != 0 {
		return oaReq.HTTPStatusCode, true
	}
	var anth *anthropic.Error
	if errors.As(err, &anth) && anth.StatusCode != 0 {
		return anth.StatusCode, true
	}
	var gapi *googleapi.Error
	if errors.As(err, &gapi) && gapi.Code != 0 {
		return gapi.Code, true
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return sc.HTTPStatus(), true
	}
	return 0, false
}
