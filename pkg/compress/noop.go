package compress

// NoopCodec stores payloads verbatim. It is the codec behind NoCompression
// and is never returned by Registry.Instantiate.
type NoopCodec struct{}

var _ Codec = NoopCodec{}

// NewNoop returns the pass-through codec.
func NewNoop() NoopCodec {
	return NoopCodec{}
}

func (NoopCodec) ID() ID       { return NoCompression }
func (NoopCodec) Name() string { return "none" }

// Compress returns a copy of src.
func (NoopCodec) Compress(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Decompress returns a copy of src.
func (NoopCodec) Decompress(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}
