package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/health"
)

// Liveness records when a bridge last completed a cycle successfully.
type Liveness struct {
	last atomic.Int64
	now  func() time.Time
}

// NewLiveness starts the clock at construction time, so a bridge that has
// just started is considered alive.
func NewLiveness() *Liveness {
	l := &Liveness{now: time.Now}
	l.Touch()
	return l
}

func (l *Liveness) Touch() {
	l.last.Store(l.now().UnixNano())
}

// Since returns the time elapsed since the last Touch.
func (l *Liveness) Since() time.Duration {
	return l.now().Sub(time.Unix(0, l.last.Load()))
}

// Check is a health check that fails once nothing succeeded for threshold.
func (l *Liveness) Check(threshold time.Duration) health.Check {
	return func(context.Context) health.ComponentHealth {
		if since := l.Since(); since >= threshold {
			return health.Down("no successful cycle for %s", since.Round(time.Second))
		}
		return health.Up()
	}
}
