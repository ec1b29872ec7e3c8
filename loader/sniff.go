package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/gambit/core"
)

var (
	wasmMagic   = []byte{0x00, 'a', 's', 'm'}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff classifies a payload by its content.
func Sniff(payload []byte) (core.RuntimeKind, error) {
	switch {
	case bytes.HasPrefix(payload, wasmMagic):
		if len(payload) < 8 || !bytes.Equal(payload[4:8], wasmVersion) {
			return "", fmt.Errorf("%w: unsupported wasm version", core.ErrInvalidFormat)
		}
		return core.KindCompiled, nil
	case utf8.Valid(payload) && bytes.IndexByte(payload, 0) < 0:
		return core.KindScript, nil
	default:
		return "", fmt.Errorf("%w: neither a wasm module nor UTF-8 source", core.ErrInvalidFormat)
	}
}

// KindFromFilename maps well-known extensions to a runtime kind.
func KindFromFilename(name string) core.RuntimeKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".wasm":
		return core.KindCompiled
	case ".js", ".mjs", ".cjs":
		return core.KindScript
	default:
		return ""
	}
}

// IsCompressed reports whether payload is a zstd frame.
func IsCompressed(payload []byte) bool {
	return bytes.HasPrefix(payload, zstdMagic)
}

// decompress inflates a zstd payload, failing once it grows past limit.
func decompress(payload []byte, limit int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(payload), zstd.WithDecoderMaxMemory(uint64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", core.ErrInvalidFormat, err)
	}
	defer dec.Close()

	out, err := io.ReadAll(io.LimitReader(dec, int64(limit)+1))
	if err != nil {
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, fmt.Errorf("%w: decompressed payload exceeds %d bytes", core.ErrPayloadTooLarge, limit)
		}
		return nil, fmt.Errorf("%w: zstd: %v", core.ErrInvalidFormat, err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: decompressed payload exceeds %d bytes", core.ErrPayloadTooLarge, limit)
	}
	return out, nil
}

// stem derives a display name from an upload filename.
func stem(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	for _, ext := range []string{".zst", ".wasm", ".mjs", ".cjs", ".js"} {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" {
		return ""
	}
	return base
}
