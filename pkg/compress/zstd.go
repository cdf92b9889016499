package compress

// ZstdID identifies Zstandard blocks.
const ZstdID ID = 5

// ZstdCodec encodes blocks with Zstandard. The implementation is chosen at
// build time: pure Go by default, cgo libzstd with the gozstd build tag.
type ZstdCodec struct{}

var _ Codec = ZstdCodec{}

// NewZstd creates a Zstandard codec.
func NewZstd() ZstdCodec {
	return ZstdCodec{}
}

func (ZstdCodec) ID() ID       { return ZstdID }
func (ZstdCodec) Name() string { return "zstd" }
