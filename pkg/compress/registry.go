package compress

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownCodec is returned when a codec name or id is not registered.
	ErrUnknownCodec = errors.New("unknown compression codec")
	// ErrDuplicateCodec is returned when a selection names the same codec twice.
	ErrDuplicateCodec = errors.New("duplicate compression codec")
)

// Descriptor catalogs one codec.
type Descriptor struct {
	ID      ID
	Name    string
	New     func() Codec
	Default bool
}

// Subset selects which registered codecs Instantiate returns.
type Subset int

const (
	// All instantiates every registered codec, default first.
	All Subset = iota
	// DefaultOnly instantiates only the codec marked as default.
	DefaultOnly
)

// Registry is a static catalog of codecs keyed by identifier.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor // sorted by ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a descriptor. The factory is invoked once and the codec it
// returns must report the declared id; any inconsistency is a programming
// error and panics.
func (r *Registry) Register(d Descriptor) {
	if d.New == nil {
		panic(fmt.Sprintf("compress: codec %q registered without a factory", d.Name))
	}
	if d.ID == NoCompression {
		panic(fmt.Sprintf("compress: codec %q may not use the reserved id 0", d.Name))
	}
	if got := d.New().ID(); got != d.ID {
		panic(fmt.Sprintf("compress: codec %q declared id %d but reports id %d", d.Name, d.ID, got))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.descriptors {
		if existing.ID == d.ID {
			panic(fmt.Sprintf("compress: id %d registered twice (%q, %q)", d.ID, existing.Name, d.Name))
		}
		if existing.Name == d.Name {
			panic(fmt.Sprintf("compress: name %q registered twice", d.Name))
		}
		if existing.Default && d.Default {
			panic(fmt.Sprintf("compress: %q and %q both marked default", existing.Name, d.Name))
		}
	}

	r.descriptors = append(r.descriptors, d)
	sort.Slice(r.descriptors, func(i, j int) bool {
		return r.descriptors[i].ID < r.descriptors[j].ID
	})
}

// List returns every descriptor in ascending id order followed by the
// implicit "none" descriptor for id 0.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.descriptors)+1)
	out = append(out, r.descriptors...)
	out = append(out, Descriptor{
		ID:   NoCompression,
		Name: "none",
		New:  func() Codec { return NewNoop() },
	})
	return out
}

// Instantiate returns fresh codec instances for the requested subset. With
// All, the default codec (if any) comes first. DefaultOnly without a default
// descriptor yields an empty slice.
func (r *Registry) Instantiate(subset Subset) []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codecs := make([]Codec, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Default {
			codecs = append(codecs, d.New())
		}
	}
	if subset == DefaultOnly {
		return codecs
	}
	for _, d := range r.descriptors {
		if !d.Default {
			codecs = append(codecs, d.New())
		}
	}
	return codecs
}

// Lookup finds a descriptor by name (case-insensitive). "none" resolves to id 0.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	for _, d := range r.List() {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ByID finds a descriptor by identifier.
func (r *Registry) ByID(id ID) (Descriptor, bool) {
	for _, d := range r.List() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Name returns the registered name for id, or "unknown(<id>)".
func (r *Registry) Name(id ID) string {
	if d, ok := r.ByID(id); ok {
		return d.Name
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// Select instantiates the named codecs in the given order. "none" entries are
// accepted and skipped, so Select("none") is an empty configuration.
func (r *Registry) Select(names ...string) ([]Codec, error) {
	seen := make(map[ID]bool, len(names))
	codecs := make([]Codec, 0, len(names))

	for _, name := range names {
		d, ok := r.Lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCodec, name)
		}
		seen[d.ID] = true
		if d.ID == NoCompression {
			continue
		}
		codecs = append(codecs, d.New())
	}
	return codecs, nil
}

var (
	builtin     *Registry
	builtinOnce sync.Once
)

// Builtin returns the process registry holding every codec this package ships.
// zlib-raw is the default, matching what Bedrock writes.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		builtin = NewRegistry()
		builtin.Register(Descriptor{ID: SnappyID, Name: "snappy", New: func() Codec { return NewSnappy() }})
		builtin.Register(Descriptor{ID: ZlibID, Name: "zlib", New: func() Codec { return NewZlib() }})
		builtin.Register(Descriptor{ID: ZlibRawID, Name: "zlib-raw", New: func() Codec { return NewZlibRaw() }, Default: true})
		builtin.Register(Descriptor{ID: ZstdID, Name: "zstd", New: func() Codec { return NewZstd() }})
		builtin.Register(Descriptor{ID: LZ4ID, Name: "lz4", New: func() Codec { return NewLZ4() }})
		builtin.Register(Descriptor{ID: S2ID, Name: "s2", New: func() Codec { return NewS2() }})
	})
	return builtin
}

// IDs returns the identifiers of codecs, preserving order.
func IDs(codecs []Codec) []ID {
	ids := make([]ID, 0, len(codecs))
	for _, c := range codecs {
		ids = append(ids, c.ID())
	}
	return ids
}
