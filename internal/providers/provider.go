package providers

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/twalsh/matchup-edge/internal/nfl"
)

const userAgent = "matchup-edge/1.0"

// BreakerExecutor wraps provider calls with circuit breaker protection.
// Satisfied by services.CircuitBreakerService.
type BreakerExecutor interface {
	Execute(provider string, fn func() (interface{}, error)) (interface{}, error)
}

// noopBreaker runs the call unprotected when no breaker is supplied
type noopBreaker struct{}

func (noopBreaker) Execute(_ string, fn func() (interface{}, error)) (interface{}, error) {
	return fn()
}

// Deps bundles the shared collaborators every adapter needs
type Deps struct {
	Cache    nfl.CacheProvider
	Logger   *logrus.Logger
	Breaker  BreakerExecutor
	Timeout  time.Duration
	CacheTTL time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Breaker == nil {
		d.Breaker = noopBreaker{}
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = 6 * time.Hour
	}
	return d
}

// New returns the adapter registered under name
func New(name string, deps Deps) (nfl.Adapter, error) {
	switch name {
	case "espn":
		return NewESPNClient(deps), nil
	case "pff":
		return NewPFFClient(deps), nil
	case "sportsdataio":
		return NewSportsDataIOClient(deps), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// fromPercent converts a 0-100 vendor value to the 0-1 fraction the rest of
// the pipeline works in
func fromPercent(v float64) float64 {
	return v / 100.0
}

func identifierSet(identifiers []string) map[string]bool {
	set := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		set[id] = true
	}
	return set
}

func cacheKey(provider string, window nfl.Window) string {
	return fmt.Sprintf("provider:%s:winrates:%d:%d", provider, window.Season, window.Week)
}
