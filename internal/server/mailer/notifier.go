package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/viaifoundation/ttsgate/internal/logging"
)

const (
	VerificationSubject = "Verify Your TTS Account"

	defaultBackoff  = 500 * time.Millisecond
	dispatchTimeout = 2 * time.Minute
)

// Notifier dispatches verification mail in the background. Callers never wait
// for delivery and never see its errors: transient failures are retried and
// permanent ones are logged.
type Notifier struct {
	sender    Sender
	verifyURL string
	retries   uint64
	backoff   time.Duration
	log       logging.Logger

	wg sync.WaitGroup
}

func NewNotifier(sender Sender, verifyURL string, retries int, log logging.Logger) *Notifier {
	if retries < 1 {
		retries = 1
	}
	return &Notifier{
		sender:    sender,
		verifyURL: verifyURL,
		retries:   uint64(retries),
		backoff:   defaultBackoff,
		log:       log,
	}
}

// VerificationLink appends the token to the configured verification page.
func (n *Notifier) VerificationLink(token string) string {
	u, err := url.Parse(n.verifyURL)
	if err != nil {
		return n.verifyURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (n *Notifier) verificationBody(token string) string {
	return fmt.Sprintf("Please verify your email by clicking this link: %s\n\nIf you did not request this, ignore this email.",
		n.VerificationLink(token))
}

// SendVerification schedules delivery and returns immediately. The request
// context only contributes its values; its cancellation does not abort the
// dispatch.
func (n *Notifier) SendVerification(ctx context.Context, email, token string) {
	body := n.verificationBody(token)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
		defer cancel()

		if err := n.deliver(dctx, email, body); err != nil {
			n.log.Error(dctx, "verification mail not delivered", "email", email, "error", err)
			return
		}
		n.log.Info(dctx, "verification mail sent", "email", email)
	}()
}

func (n *Notifier) deliver(ctx context.Context, email, body string) error {
	attempt := 0
	b := retry.WithMaxRetries(n.retries, retry.NewExponential(n.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := n.sender.Send(ctx, email, VerificationSubject, body)
		if err == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return err
		}
		n.log.Warn(ctx, "verification mail attempt failed", "email", email, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

// Wait blocks until every scheduled dispatch has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
