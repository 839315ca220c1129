// Package locator narrows down the addresses holding a value across successive
// observations: an initial scan per type, then re-reads that prune the candidates.
package locator

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"gomemscan/codec"
	"gomemscan/process"
	"gomemscan/scanner"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/samber/lo"
)

// ErrNoValue is returned by GetModifiedAddresses before any value was committed.
var ErrNoValue = errors.New("no value has been fed")

// CandidateSet maps each probed type to the addresses believed to hold the value.
type CandidateSet map[codec.ScalarType][]process.Address

// Len returns the number of candidates over every type.
func (cs CandidateSet) Len() int {
	n := 0
	for _, addrs := range cs {
		n += len(addrs)
	}
	return n
}

// Types returns the probed types in sorted order.
func (cs CandidateSet) Types() []codec.ScalarType {
	types := lo.Keys(cs)
	slices.Sort(types)
	return types
}

func (cs CandidateSet) Clone() CandidateSet {
	out := make(CandidateSet, len(cs))
	for t, addrs := range cs {
		out[t] = slices.Clone(addrs)
	}
	return out
}

// generation is immutable once published.
type generation struct {
	set   CandidateSet
	value float64
}

func (g *generation) candidates(t codec.ScalarType) ([]process.Address, bool) {
	if g == nil {
		return nil, false
	}
	addrs, ok := g.set[t]
	return addrs, ok
}

type Locator struct {
	p        process.Process
	typ      codec.ScalarType
	start    process.ProcessMemoryAddress
	end      process.ProcessMemoryAddress
	scanOpts []scanner.Option
	log      *logger.Logger

	current atomic.Pointer[generation]
}

type Option func(*Locator)

// WithType fixes the probed type. The default probes every numeric type.
func WithType(t codec.ScalarType) Option {
	return func(l *Locator) {
		l.typ = t
	}
}

func WithRange(start, end process.ProcessMemoryAddress) Option {
	return func(l *Locator) {
		l.start = start
		l.end = end
	}
}

// WithScanOptions passes extra options, such as chunk size or protection, to the
// initial scans.
func WithScanOptions(opts ...scanner.Option) Option {
	return func(l *Locator) {
		l.scanOpts = append(l.scanOpts, opts...)
	}
}

func New(p process.Process, opts ...Option) (*Locator, error) {
	l := &Locator{p: p}
	for _, opt := range opts {
		opt(l)
	}

	if l.typ != "" && !l.typ.IsNumeric() {
		return nil, fmt.Errorf("%w: locator needs a numeric type, got %q", codec.ErrUnknownType, l.typ)
	}

	name := "locator"
	if l.typ != "" {
		name = "locator-" + l.typ.String()
	}
	l.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, name))
	return l, nil
}

func (l *Locator) types() []codec.ScalarType {
	if l.typ == "" {
		return codec.NumericTypes
	}
	return []codec.ScalarType{l.typ}
}

// Feed builds a new generation for value. Types with no candidate list yet are found
// by a fresh scan; types that already have one are only pruned, keeping the addresses
// whose current value has the same integer part as value. With commit the new
// generation replaces the current one.
//
// A value that cannot be encoded as a type leaves that type empty, as does a failed
// re-read during pruning. A closed handle, a denied read and a failed region query
// are returned to the caller.
func (l *Locator) Feed(value float64, commit bool) (CandidateSet, error) {
	prior := l.current.Load()

	next := make(CandidateSet)
	for _, t := range l.types() {
		var (
			addrs []process.Address
			err   error
		)
		if existing, ok := prior.candidates(t); ok {
			addrs, err = l.prune(t, existing, value)
		} else {
			addrs, err = l.scan(t, value)
		}

		if fatal(err) {
			return nil, err
		}
		if err != nil {
			l.log.Debugln("No candidates for", t, ":", err)
			addrs = []process.Address{}
		}
		next[t] = lo.Uniq(addrs)
	}

	if commit {
		l.current.Store(&generation{set: next, value: value})
		l.log.Infoln("Committed", next.Len(), "candidates for value", value)
	}
	return next.Clone(), nil
}

func fatal(err error) bool {
	return errors.Is(err, process.ErrProcessNotOpen) ||
		errors.Is(err, process.ErrPermissionDenied) ||
		errors.Is(err, process.ErrQueryFailed)
}

// Find is Feed.
func (l *Locator) Find(value float64, commit bool) (CandidateSet, error) {
	return l.Feed(value, commit)
}

func (l *Locator) scan(t codec.ScalarType, value float64) ([]process.Address, error) {
	m, err := scanner.Literal(t, value)
	if err != nil {
		return nil, err
	}

	opts := append([]scanner.Option{scanner.WithRange(l.start, l.end)}, l.scanOpts...)

	addrs := []process.Address{}
	for match, err := range scanner.Scan(l.p, m, opts...) {
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, match.Address)
	}
	return addrs, nil
}

func (l *Locator) prune(t codec.ScalarType, candidates []process.Address, value float64) ([]process.Address, error) {
	kept := []process.Address{}
	for _, addr := range candidates {
		found, err := process.Read(l.p, addr.Value, t)
		if errors.Is(err, process.ErrProcessNotOpen) {
			return nil, err
		}
		if err != nil {
			continue
		}
		if codec.TruncEqual(found, value) {
			kept = append(kept, process.NewAddress(addr.Value, t))
		}
	}
	return kept, nil
}

// Addresses returns a copy of the committed generation, or nil before the first commit.
func (l *Locator) Addresses() CandidateSet {
	g := l.current.Load()
	if g == nil {
		return nil
	}
	return g.set.Clone()
}

// Value returns the value of the committed generation.
func (l *Locator) Value() (float64, bool) {
	g := l.current.Load()
	if g == nil {
		return 0, false
	}
	return g.value, true
}

// GetModifiedAddresses re-feeds the committed value and returns, per type, the
// addresses of the committed generation that no longer hold it.
func (l *Locator) GetModifiedAddresses(commit bool) (CandidateSet, error) {
	prior := l.current.Load()
	if prior == nil {
		return nil, ErrNoValue
	}

	next, err := l.Feed(prior.value, commit)
	if err != nil {
		return nil, err
	}

	modified := make(CandidateSet)
	for t, addrs := range prior.set {
		still := lo.SliceToMap(next[t], func(a process.Address) (process.ProcessMemoryAddress, struct{}) {
			return a.Value, struct{}{}
		})
		changed := lo.Filter(addrs, func(a process.Address, _ int) bool {
			_, ok := still[a.Value]
			return !ok
		})
		if len(changed) > 0 {
			modified[t] = changed
		}
	}
	return modified, nil
}

// Diff is GetModifiedAddresses.
func (l *Locator) Diff(commit bool) (CandidateSet, error) {
	return l.GetModifiedAddresses(commit)
}
