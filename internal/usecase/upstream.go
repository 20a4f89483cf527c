package usecase

import (
	stderrors "errors"

	"github.com/wityliti/wityliti.io-sub000/internal/domain/provider"
	"github.com/wityliti/wityliti.io-sub000/pkg/errors"
)

// upstreamError hides gateway detail from callers. Non-retryable gateway
// rejections are internal faults; everything else may be retried.
func upstreamError(err error) error {
	var perr *provider.ProviderError
	if stderrors.As(err, &perr) && !perr.Retryable() {
		return errors.NewAppError(errors.ErrInternal, "Payment gateway rejected the request", err)
	}
	return errors.Unavailable(err)
}
