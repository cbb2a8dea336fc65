package warden

import (
	"time"

	"gopkg.in/tomb.v2"

	"github.com/warden-io/warden/vault"
)

// A Reaper periodically removes expired grants. The sweep is idempotent and
// may run on multiple instances concurrently.
type Reaper struct {
	vault    *vault.Vault
	interval time.Duration
	reporter func(error)
	tomb     tomb.Tomb
}

// NewReaper creates and starts a reaper using the provided interval.
func NewReaper(vault *vault.Vault, interval time.Duration, reporter func(error)) *Reaper {
	// prepare reaper
	r := &Reaper{
		vault:    vault,
		interval: interval,
		reporter: reporter,
	}

	// run reaper
	r.tomb.Go(r.run)

	return r
}

func (r *Reaper) run() error {
	// prepare ticker
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.tomb.Dying():
			return tomb.ErrDying
		case <-ticker.C:
			_, err := r.vault.DeleteExpiredGrants(r.tomb.Context(nil))
			if err != nil && r.reporter != nil {
				r.reporter(err)
			}
		}
	}
}

// Close will stop the reaper and wait until it returned.
func (r *Reaper) Close() {
	r.tomb.Kill(nil)
	_ = r.tomb.Wait()
}
