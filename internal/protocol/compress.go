package protocol

import (
	"fmt"

	"github.com/golang/snappy"
)

// FlagCompressed marks a snappy compressed payload. It can be set on any
// frame type.
const FlagCompressed uint8 = 1 << 2

// Compress snappy-encodes the frame payload in place.
func Compress(f *Frame) {
	if f.Flags&FlagCompressed != 0 || len(f.Payload) == 0 {
		return
	}
	f.Payload = snappy.Encode(nil, f.Payload)
	f.Flags |= FlagCompressed
}

// Decompress restores a compressed payload in place, refusing payloads that
// would expand beyond limit bytes. A limit of zero disables the check.
func Decompress(f *Frame, limit int) error {
	if f.Flags&FlagCompressed == 0 {
		return nil
	}
	n, err := snappy.DecodedLen(f.Payload)
	if err != nil {
		return fmt.Errorf("reading compressed length: %w", err)
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: decompressed payload %d bytes, limit %d", ErrFrameTooLarge, n, limit)
	}
	payload, err := snappy.Decode(nil, f.Payload)
	if err != nil {
		return fmt.Errorf("decompressing payload: %w", err)
	}
	f.Payload = payload
	f.Flags &^= FlagCompressed
	return nil
}
