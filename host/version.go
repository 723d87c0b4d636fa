package host

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
)

// VersionSectionName is the custom section an extension binary declares its
// interface version in.
const VersionSectionName = "zed:api-version"

// versionMarkerSize is three big-endian u16 components.
const versionMarkerSize = 6

var (
	wasmMagic   = []byte{0x00, 'a', 's', 'm'}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

// DefaultSupportedVersions is the interface version range a host accepts
// unless configured otherwise.
var DefaultSupportedVersions = entities.VersionRange{
	Min: entities.NewSemanticVersion(0, 1, 0),
	Max: entities.NewSemanticVersion(1, 0, 0),
}

// errCorruptModule reports a binary whose section framing cannot be walked.
var errCorruptModule = errors.New("corrupt wasm module")

// EncodeVersionMarker returns the 6-byte payload of the version section.
func EncodeVersionMarker(v entities.SemanticVersion) [versionMarkerSize]byte {
	var out [versionMarkerSize]byte
	binary.BigEndian.PutUint16(out[0:], v.Major)
	binary.BigEndian.PutUint16(out[2:], v.Minor)
	binary.BigEndian.PutUint16(out[4:], v.Patch)
	return out
}

// DecodeVersionMarker decodes a version section payload. It reports false
// unless raw is exactly 6 bytes.
func DecodeVersionMarker(raw []byte) (entities.SemanticVersion, bool) {
	if len(raw) != versionMarkerSize {
		return entities.SemanticVersion{}, false
	}
	return entities.SemanticVersion{
		Major: binary.BigEndian.Uint16(raw[0:]),
		Minor: binary.BigEndian.Uint16(raw[2:]),
		Patch: binary.BigEndian.Uint16(raw[4:]),
	}, true
}

// ParseExtensionVersion reads the interface version an extension binary
// declares. Every version section must be well formed; the last one wins.
//
// It returns ErrMissingVersion when the binary has no version section,
// *InvalidVersionError when any payload is not 6 bytes, and a wrapped
// errCorruptModule when the section framing is broken.
func ParseExtensionVersion(extensionID string, wasm []byte) (entities.SemanticVersion, error) {
	var (
		version entities.SemanticVersion
		found   bool
	)
	err := eachCustomSection(wasm, VersionSectionName, func(raw []byte) error {
		v, ok := DecodeVersionMarker(raw)
		if !ok {
			return &domainerrors.InvalidVersionError{
				Extension: extensionID,
				Raw:       append([]byte(nil), raw...),
			}
		}
		version, found = v, true
		return nil
	})
	if err != nil {
		if errors.Is(err, errCorruptModule) {
			return entities.SemanticVersion{}, fmt.Errorf("extension %s: %w", extensionID, err)
		}
		return entities.SemanticVersion{}, err
	}
	if !found {
		return entities.SemanticVersion{}, domainerrors.ErrMissingVersion
	}
	return version, nil
}

// eachCustomSection walks the top-level sections of a core module and calls
// fn with the payload of every custom section called name, in order. The
// walk stops at the first error fn returns.
func eachCustomSection(wasm []byte, name string, fn func(payload []byte) error) error {
	if len(wasm) < 8 || !bytes.Equal(wasm[:4], wasmMagic) {
		return fmt.Errorf("%w: bad magic", errCorruptModule)
	}
	if !bytes.Equal(wasm[4:8], wasmVersion) {
		return fmt.Errorf("%w: unsupported binary version %v", errCorruptModule, wasm[4:8])
	}

	rest := wasm[8:]
	for len(rest) > 0 {
		id := rest[0]
		size, n, err := readVarU32(rest[1:])
		if err != nil {
			return fmt.Errorf("%w: section size: %v", errCorruptModule, err)
		}
		rest = rest[1+n:]
		if uint64(size) > uint64(len(rest)) {
			return fmt.Errorf("%w: section %d overruns the module by %d bytes", errCorruptModule, id, uint64(size)-uint64(len(rest)))
		}
		body := rest[:size]
		rest = rest[size:]

		if id != 0 {
			continue
		}
		nameLen, n, err := readVarU32(body)
		if err != nil {
			return fmt.Errorf("%w: custom section name: %v", errCorruptModule, err)
		}
		body = body[n:]
		if uint64(nameLen) > uint64(len(body)) {
			return fmt.Errorf("%w: custom section name overruns its section", errCorruptModule)
		}
		if string(body[:nameLen]) != name {
			continue
		}
		if err := fn(body[nameLen:]); err != nil {
			return err
		}
	}
	return nil
}

// readVarU32 decodes an unsigned LEB128 value of at most 5 bytes.
func readVarU32(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		if i >= len(b) {
			return 0, 0, errors.New("truncated leb128")
		}
		c := b[i]
		if i == 4 && c&0xf0 != 0 {
			return 0, 0, errors.New("leb128 overflows u32")
		}
		v |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errors.New("leb128 overflows u32")
}

// checkVersion validates a declared version against the supported range.
func checkVersion(extensionID string, v entities.SemanticVersion, supported entities.VersionRange) error {
	if !supported.Contains(v) {
		return &domainerrors.UnsupportedVersionError{
			Extension: extensionID,
			Version:   v,
			Min:       supported.Min,
			Max:       supported.Max,
		}
	}
	return nil
}
