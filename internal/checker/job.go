package checker

import (
	"context"
	"errors"
	"fmt"

	"github.com/mendoc/paypal-listener/internal/domain"
	"github.com/mendoc/paypal-listener/internal/jobs"
)

var errMailboxUnavailable = errors.New("mailbox check failed")

// HandleJob runs a queued check. A revoked credential fails permanently
// since only the owner can fix it; other mailbox failures are retried.
func (c *Checker) HandleJob(ctx context.Context, job *jobs.CheckRunJob) error {
	res, err := c.Run(ctx)
	if err != nil {
		return err
	}
	job.Result = res

	switch res.ErrorCode {
	case domain.ErrorCodeNone:
		return nil
	case domain.ErrorCodeReauth:
		return fmt.Errorf("%w: mailbox needs re-authorization", jobs.ErrPermanent)
	default:
		return errMailboxUnavailable
	}
}
