package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/driftworks/workbench/internal/logging"
)

// PoolConfig configures sandbox pre-warming.
type PoolConfig struct {
	// Size is the number of warm sandboxes to maintain (default 2).
	Size int
	// RefillInterval is how often the pool checks and refills (default 10s).
	RefillInterval time.Duration
}

// Pool wraps a Runtime and keeps a few sandboxes created ahead of demand so
// thread startup does not pay the provisioning cost. Only Create is
// intercepted; every other Runtime call passes through.
type Pool struct {
	Runtime
	config PoolConfig

	mu     sync.Mutex
	warm   []Info
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pre-warming pool around the given runtime.
func NewPool(inner Runtime, cfg PoolConfig) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = 2
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = 10 * time.Second
	}
	return &Pool{Runtime: inner, config: cfg}
}

// Start begins the background refill loop. Call Stop to shut down.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.refillLoop()
	}()
}

// Stop halts refilling and destroys any remaining warm sandboxes.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	warm := p.warm
	p.warm = nil
	p.mu.Unlock()

	ctx := context.Background()
	for _, info := range warm {
		if err := p.Runtime.Destroy(ctx, info.ID); err != nil {
			logging.Warnf("[pool] failed to clean up warm sandbox %s: %v", info.ID, err)
		}
	}
}

// WarmCount returns the number of ready sandboxes.
func (p *Pool) WarmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.warm)
}

// Create claims a warm sandbox when one is ready, falling back to a cold
// create.
func (p *Pool) Create(ctx context.Context) (Info, error) {
	if info, ok := p.claim(); ok {
		logging.Debugf("[pool] claimed warm sandbox %s", info.ID)
		return info, nil
	}
	return p.Runtime.Create(ctx)
}

func (p *Pool) claim() (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.warm) == 0 {
		return Info{}, false
	}
	info := p.warm[0]
	p.warm = p.warm[1:]
	return info, true
}

func (p *Pool) refillLoop() {
	p.refill()

	ticker := time.NewTicker(p.config.RefillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.refill()
		}
	}
}

func (p *Pool) refill() {
	p.mu.Lock()
	deficit := p.config.Size - len(p.warm)
	p.mu.Unlock()

	for i := 0; i < deficit; i++ {
		info, err := p.Runtime.Create(p.ctx)
		if err != nil {
			logging.Warnf("[pool] failed to pre-warm sandbox: %v", err)
			return
		}
		p.mu.Lock()
		p.warm = append(p.warm, info)
		n := len(p.warm)
		p.mu.Unlock()
		logging.Debugf("[pool] pre-warmed sandbox %s (%d/%d)", info.ID, n, p.config.Size)
	}
}
