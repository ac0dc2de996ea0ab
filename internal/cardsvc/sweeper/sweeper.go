package sweeper

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Expirer is implemented by service.CardService.
type Expirer interface {
	SweepExpired(ctx context.Context) (int, error)
}

type Sweeper struct {
	cards   Expirer
	timeout time.Duration
}

func NewSweeper(cards Expirer, timeout time.Duration) *Sweeper {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Sweeper{cards: cards, timeout: timeout}
}

// RunOnce performs a single sweep. Errors are logged and returned; the next
// scheduled run is the retry.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.cards.SweepExpired(ctx)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		log.Errorf("expiration sweep failed: %v", err)
		return 0, err
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	cardsExpiredTotal.Add(float64(n))
	log.Infof("expiration sweep marked %d card(s) as EXPIRED", n)
	return n, nil
}

// Run adapts RunOnce to Daily.
func (s *Sweeper) Run(ctx context.Context) {
	_, _ = s.RunOnce(ctx)
}
