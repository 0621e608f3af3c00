package executor

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/fortiblox/X1-Scenario/internal/types"
)

var (
	// ErrDuplicateContract is returned when a code blob is registered twice.
	ErrDuplicateContract = errors.New("contract code already registered")
)

// EndpointFunc is a compiled-in contract function.
type EndpointFunc func(api *API)

// Endpoint is one exported contract function.
type Endpoint struct {
	Name string
	Fn   EndpointFunc

	// Payable endpoints accept native value and token payments.
	Payable bool
}

// ContractContainer is a compiled-in contract implementation.
type ContractContainer struct {
	name            string
	endpoints       map[string]Endpoint
	allowed         map[string]bool
	panicsAreErrors bool
}

// NewContract creates a container exporting the given endpoints.
func NewContract(name string, endpoints ...Endpoint) *ContractContainer {
	c := &ContractContainer{
		name:      name,
		endpoints: make(map[string]Endpoint, len(endpoints)),
	}
	for _, ep := range endpoints {
		c.endpoints[ep.Name] = ep
	}
	return c
}

// WithAllowedEndpoints returns a copy that only exports the named endpoints,
// the way a multi-output build exposes a subset of a contract.
func (c *ContractContainer) WithAllowedEndpoints(names ...string) *ContractContainer {
	cp := *c
	cp.allowed = make(map[string]bool, len(names))
	for _, n := range names {
		cp.allowed[n] = true
	}
	return &cp
}

// WithPanicsAsErrors returns a copy where Go panics that are not traps fail
// the call with ExecutionFailed instead of propagating.
func (c *ContractContainer) WithPanicsAsErrors() *ContractContainer {
	cp := *c
	cp.panicsAreErrors = true
	return &cp
}

// Name returns the contract name.
func (c *ContractContainer) Name() string {
	return c.name
}

// Lookup returns an exported endpoint.
func (c *ContractContainer) Lookup(name string) (Endpoint, bool) {
	ep, ok := c.endpoints[name]
	if !ok {
		return Endpoint{}, false
	}
	if c.allowed != nil && !c.allowed[name] {
		return Endpoint{}, false
	}
	return ep, true
}

// Endpoints returns the exported endpoint names in order.
func (c *ContractContainer) Endpoints() []string {
	names := make([]string, 0, len(c.endpoints))
	for n := range c.endpoints {
		if c.allowed == nil || c.allowed[n] {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// RegistryCacheSize bounds the lookup cache.
const RegistryCacheSize = 256

// Registry maps code blobs to contract containers.
type Registry struct {
	mu     sync.RWMutex
	byCode map[types.Hash]*ContractContainer
	recent *lru.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	recent, err := lru.New(RegistryCacheSize)
	if err != nil {
		panic(err)
	}
	return &Registry{
		byCode: make(map[types.Hash]*ContractContainer),
		recent: recent,
	}
}

// CodeHash identifies a code blob.
func CodeHash(code []byte) types.Hash {
	return types.Hash(blake3.Sum256(code))
}

// Register binds code to a container.
func (r *Registry) Register(code []byte, c *ContractContainer) error {
	h := CodeHash(code)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[h]; ok {
		return errors.Wrapf(ErrDuplicateContract, "%s", c.name)
	}
	r.byCode[h] = c
	return nil
}

// MustRegister is Register for setup code.
func (r *Registry) MustRegister(code []byte, c *ContractContainer) {
	if err := r.Register(code, c); err != nil {
		panic(err)
	}
}

// Lookup returns the container bound to code.
func (r *Registry) Lookup(code []byte) (*ContractContainer, bool) {
	if len(code) == 0 {
		return nil, false
	}
	h := CodeHash(code)
	if c, ok := r.recent.Get(h); ok {
		return c.(*ContractContainer), true
	}
	r.mu.RLock()
	c, ok := r.byCode[h]
	r.mu.RUnlock()
	if ok {
		r.recent.Add(h, c)
	}
	return c, ok
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
