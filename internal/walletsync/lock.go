package walletsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
)

// acquire claims the wallet for a scan identified by token, first in process
// and then through the ScanGuard. The wallet stays in s.locks only while the
// claim is held.
//
// The returned context is canceled with ErrScanClaimLost when the guard
// refuses to renew the claim. The returned release must be called once the
// scan is over.
func (s *Service) acquire(ctx context.Context, walletID, token string) (context.Context, func(), error) {
	if _, running := s.locks.LoadOrStore(walletID, struct{}{}); running {
		return nil, nil, ErrScanInProgress
	}

	ok, err := s.guard.AcquireScan(ctx, walletID, token, s.guardTTL)
	if err != nil {
		s.locks.Delete(walletID)
		return nil, nil, fmt.Errorf("acquire scan guard: %w", err)
	}

	if !ok {
		s.locks.Delete(walletID)
		return nil, nil, ErrScanInProgress
	}

	scanCtx, cancel := context.WithCancelCause(ctx)

	var (
		stop = make(chan struct{})
		wg   sync.WaitGroup
	)
	if _, local := s.guard.(nopScanGuard); !local {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.keepClaim(scanCtx, cancel, stop, walletID, token)
		}()
	}

	release := func() {
		close(stop)
		wg.Wait()
		cancel(nil)

		// the scan context may already be canceled
		if err := s.guard.ReleaseScan(context.WithoutCancel(ctx), walletID, token); err != nil {
			logger.Warn(ctx, "failed to release scan guard", "wallet.id", walletID, "error", err)
		}
		s.locks.Delete(walletID)
	}

	return scanCtx, release, nil
}

// keepClaim renews the claim every third of its ttl until stop is closed. A
// failed or refused renewal cancels the scan.
func (s *Service) keepClaim(ctx context.Context, cancel context.CancelCauseFunc, stop <-chan struct{}, walletID, token string) {
	ticker := time.NewTicker(max(s.guardTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := s.guard.ExtendScan(ctx, walletID, token, s.guardTTL)
		if err == nil && ok {
			continue
		}

		if err == nil {
			err = fmt.Errorf("%w: claim on %s is held by another run", ErrScanClaimLost, walletID)
		} else {
			err = fmt.Errorf("%w: %w", ErrScanClaimLost, err)
		}

		logger.Error(ctx, "scan claim could not be renewed", "wallet.id", walletID, "error", err)
		cancel(err)
		return
	}
}
