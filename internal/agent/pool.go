package agent

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/docker/docker/client"
)

// Agent kinds a pool can be built from.
const (
	KindShell  = "shell"
	KindDocker = "docker"
)

// PoolSpec describes one pool.
type PoolSpec struct {
	Name    string `mapstructure:"name"`
	Size    int    `mapstructure:"size"`
	Kind    string `mapstructure:"kind"`
	Image   string `mapstructure:"image"`
	Shell   string `mapstructure:"shell"`
	WorkDir string `mapstructure:"workdir"`
}

// Pool is a fixed set of agents. It is safe for concurrent use.
type Pool struct {
	name   string
	agents []Agent

	mu   sync.Mutex
	free []Agent
	busy map[Agent]struct{}
}

// NewPool creates a pool over the given agents.
func NewPool(name string, agents ...Agent) *Pool {
	free := make([]Agent, len(agents))
	copy(free, agents)
	return &Pool{
		name:   name,
		agents: agents,
		free:   free,
		busy:   make(map[Agent]struct{}, len(agents)),
	}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Capacity returns the number of agents in the pool.
func (p *Pool) Capacity() int { return len(p.agents) }

// Busy returns the number of agents currently handed out.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}

// TryAcquire hands out a free agent without blocking. It returns
// ErrAgentUnavailable when every agent is busy.
func (p *Pool) TryAcquire() (Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, fmt.Errorf("pool %q: %w", p.name, ErrAgentUnavailable)
	}
	a := p.free[0]
	p.free = p.free[1:]
	p.busy[a] = struct{}{}
	return a, nil
}

// Release returns an agent obtained from TryAcquire.
func (p *Pool) Release(a Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.busy[a]; !ok {
		panic(fmt.Sprintf("agent %s released to pool %q twice or never acquired", a.Name(), p.name))
	}
	delete(p.busy, a)
	p.free = append(p.free, a)
}

// Close closes every agent that holds resources.
func (p *Pool) Close() error {
	var errs []error
	for _, a := range p.agents {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Pools is the set of pools available to a run, by name.
type Pools struct {
	pools  map[string]*Pool
	docker *client.Client
}

// NewPools builds pools from specs. A docker client is created only when
// some pool needs one.
func NewPools(specs []PoolSpec) (*Pools, error) {
	ps := &Pools{pools: make(map[string]*Pool, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.New("pool without a name")
		}
		if _, dup := ps.pools[spec.Name]; dup {
			return nil, fmt.Errorf("pool %q is declared twice", spec.Name)
		}
		if spec.Size < 1 {
			return nil, fmt.Errorf("pool %q: size must be at least 1, got %d", spec.Name, spec.Size)
		}

		agents := make([]Agent, 0, spec.Size)
		for i := range spec.Size {
			name := fmt.Sprintf("%s-%d", spec.Name, i+1)
			switch spec.Kind {
			case "", KindShell:
				agents = append(agents, NewShellAgent(name, spec.Shell, spec.WorkDir))
			case KindDocker:
				if spec.Image == "" {
					return nil, fmt.Errorf("pool %q: docker pools need an image", spec.Name)
				}
				if ps.docker == nil {
					cli, err := NewDockerClient()
					if err != nil {
						return nil, fmt.Errorf("pool %q: %w", spec.Name, err)
					}
					ps.docker = cli
				}
				agents = append(agents, NewDockerAgent(name, ps.docker, DockerOptions{
					Image:   spec.Image,
					WorkDir: spec.WorkDir,
					Shell:   spec.Shell,
				}))
			default:
				return nil, fmt.Errorf("pool %q: unknown agent kind %q", spec.Name, spec.Kind)
			}
		}
		ps.pools[spec.Name] = NewPool(spec.Name, agents...)
	}
	return ps, nil
}

// NewPoolsOf wraps already built pools.
func NewPoolsOf(pools ...*Pool) *Pools {
	ps := &Pools{pools: make(map[string]*Pool, len(pools))}
	for _, p := range pools {
		ps.pools[p.name] = p
	}
	return ps
}

// Get returns the named pool.
func (ps *Pools) Get(name string) (*Pool, bool) {
	p, ok := ps.pools[name]
	return p, ok
}

// Names returns the pool names in sorted order.
func (ps *Pools) Names() []string {
	names := make([]string, 0, len(ps.pools))
	for n := range ps.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Capacity is the total number of agents across all pools.
func (ps *Pools) Capacity() int {
	n := 0
	for _, p := range ps.pools {
		n += p.Capacity()
	}
	return n
}

// Close closes every pool and the shared docker client.
func (ps *Pools) Close() error {
	var errs []error
	for _, name := range ps.Names() {
		if err := ps.pools[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if ps.docker != nil {
		if err := ps.docker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
