package testutil

import (
	"encoding/binary"
	"fmt"
)

// Core wasm encoding constants used by the generator.
const (
	valI32 = 0x7f
	valI64 = 0x7e

	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	exportFunc   = 0x00
	exportMemory = 0x02

	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opBr          = 0x0c
	opBrIf        = 0x0d
	opEnd         = 0x0b
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opMemorySize  = 0x3f
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32LeU      = 0x4d
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32Shl      = 0x74
	opI32ShrU     = 0x76
	blockEmpty    = 0x40

	pageSize  = 65536
	dataStart = 16
	heapAlign = 8
)

// VersionSection is the custom section carrying the interface version marker.
const VersionSection = "zed:api-version"

// ImportModule is the module name host imports are linked under.
const ImportModule = "zed"

// Guest builds a core wasm module that speaks the extension ABI:
// it exports memory and a bump allocator named "allocate", and each
// configured operation export has the signature (ptr i32, len i32) -> i64.
//
// The generated guests are deliberately tiny. They return constant result
// envelopes, forward a constant payload to a host import, spin forever, or
// trap, which is enough to drive the host's dispatch paths end to end.
type Guest struct {
	version    []byte
	imports    []string
	exports    []guestExport
	customs    []custom
	noAllocate bool
	initTrap   bool
	initialize bool
}

type exportKind int

const (
	kindConst exportKind = iota
	kindCallImport
	kindSpin
	kindTrap
)

type guestExport struct {
	name    string
	target  string
	payload []byte
	kind    exportKind
}

type custom struct {
	name    string
	payload []byte
}

// NewGuest starts a guest with no exports besides memory and allocate.
func NewGuest() *Guest {
	return &Guest{}
}

// Version adds a well-formed 6-byte version marker.
func (g *Guest) Version(major, minor, patch uint16) *Guest {
	raw := make([]byte, 6)
	binary.BigEndian.PutUint16(raw[0:], major)
	binary.BigEndian.PutUint16(raw[2:], minor)
	binary.BigEndian.PutUint16(raw[4:], patch)
	return g.RawVersion(raw)
}

// RawVersion adds a version marker with an arbitrary payload.
func (g *Guest) RawVersion(raw []byte) *Guest {
	g.version = append([]byte(nil), raw...)
	return g
}

// Custom adds an extra custom section.
func (g *Guest) Custom(name string, payload []byte) *Guest {
	g.customs = append(g.customs, custom{name: name, payload: append([]byte(nil), payload...)})
	return g
}

// Const exports an operation that always returns result.
func (g *Guest) Const(export string, result string) *Guest {
	g.exports = append(g.exports, guestExport{name: export, kind: kindConst, payload: []byte(result)})
	return g
}

// CallImport exports an operation that calls host import importName with
// payload and returns whatever the host answered.
func (g *Guest) CallImport(export, importName string, payload string) *Guest {
	g.addImport(importName)
	g.exports = append(g.exports, guestExport{name: export, kind: kindCallImport, target: importName, payload: []byte(payload)})
	return g
}

// Spin exports an operation that never returns.
func (g *Guest) Spin(export string) *Guest {
	g.exports = append(g.exports, guestExport{name: export, kind: kindSpin})
	return g
}

// Trap exports an operation that traps immediately.
func (g *Guest) Trap(export string) *Guest {
	g.exports = append(g.exports, guestExport{name: export, kind: kindTrap})
	return g
}

// Import links a host import without calling it.
func (g *Guest) Import(name string) *Guest {
	g.addImport(name)
	return g
}

// Initialize exports _initialize. When trap is set it traps.
func (g *Guest) Initialize(trap bool) *Guest {
	g.initialize = true
	g.initTrap = trap
	return g
}

// WithoutAllocate drops the allocate export.
func (g *Guest) WithoutAllocate() *Guest {
	g.noAllocate = true
	return g
}

func (g *Guest) addImport(name string) {
	for _, existing := range g.imports {
		if existing == name {
			return
		}
	}
	g.imports = append(g.imports, name)
}

func (g *Guest) importIndex(name string) uint32 {
	for i, existing := range g.imports {
		if existing == name {
			return uint32(i) //nolint:gosec // G115: a handful of imports
		}
	}
	panic(fmt.Sprintf("wasmgen: import %q not registered", name))
}

// Bytes encodes the module.
func (g *Guest) Bytes() []byte {
	m := newModule()

	// Lay constant payloads out in the data section.
	offsets := make([]uint32, len(g.exports))
	next := uint32(dataStart)
	for i, e := range g.exports {
		if len(e.payload) == 0 {
			continue
		}
		offsets[i] = next
		m.data(next, e.payload)
		next += uint32(len(e.payload)) //nolint:gosec // G115: test payloads are small
	}
	heapStart := (next + heapAlign - 1) &^ (heapAlign - 1)
	if heapStart < 1024 {
		heapStart = 1024
	}
	m.memory(heapStart/pageSize + 2)
	heap := m.global(valI32, int64(heapStart))

	for _, name := range g.imports {
		m.importFunc(ImportModule, name, m.typeIndex([]byte{valI64}, []byte{valI64}))
	}

	opType := m.typeIndex([]byte{valI32, valI32}, []byte{valI64})

	if !g.noAllocate {
		idx := m.function(m.typeIndex([]byte{valI32}, []byte{valI32}), []byte{valI32}, allocateBody(heap))
		m.export("allocate", exportFunc, idx)
	}

	if g.initialize {
		body := []byte{}
		if g.initTrap {
			body = append(body, opUnreachable)
		}
		idx := m.function(m.typeIndex(nil, nil), nil, body)
		m.export("_initialize", exportFunc, idx)
	}

	for i, e := range g.exports {
		var body []byte
		switch e.kind {
		case kindConst:
			body = i64Const(nil, packPtrLen(offsets[i], uint32(len(e.payload)))) //nolint:gosec // G115: small payloads
		case kindCallImport:
			body = i64Const(nil, packPtrLen(offsets[i], uint32(len(e.payload)))) //nolint:gosec // G115: small payloads
			body = append(body, opCall)
			body = appendU32(body, g.importIndex(e.target))
		case kindSpin:
			body = []byte{opLoop, blockEmpty, opBr, 0x00, opEnd}
			body = i64Const(body, 0)
		case kindTrap:
			body = []byte{opUnreachable}
		}
		idx := m.function(opType, nil, body)
		m.export(e.name, exportFunc, idx)
	}

	m.export("memory", exportMemory, 0)

	if g.version != nil {
		m.custom(VersionSection, g.version)
	}
	for _, c := range g.customs {
		m.custom(c.name, c.payload)
	}
	return m.encode()
}

// allocateBody is a bump allocator that grows memory when the heap passes
// the current size:
//
//	p = heap; heap += n
//	if heap > memory.size*64Ki { memory.grow(((heap - memory.size*64Ki) >> 16) + 1) }
//	return p
func allocateBody(heap uint32) []byte {
	b := []byte{opGlobalGet}
	b = appendU32(b, heap)
	b = append(b, opLocalSet, 0x01)

	b = append(b, opGlobalGet)
	b = appendU32(b, heap)
	b = append(b, opLocalGet, 0x00, opI32Add, opGlobalSet)
	b = appendU32(b, heap)

	b = append(b, opBlock, blockEmpty, opGlobalGet)
	b = appendU32(b, heap)
	b = append(b, opMemorySize, 0x00, opI32Const, 16, opI32Shl, opI32LeU, opBrIf, 0x00)
	b = append(b, opGlobalGet)
	b = appendU32(b, heap)
	b = append(b, opMemorySize, 0x00, opI32Const, 16, opI32Shl, opI32Sub,
		opI32Const, 16, opI32ShrU, opI32Const, 1, opI32Add,
		opMemoryGrow, 0x00, opDrop, opEnd)

	return append(b, opLocalGet, 0x01)
}

func packPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func i64Const(b []byte, v uint64) []byte {
	b = append(b, opI64Const)
	return appendS64(b, int64(v)) //nolint:gosec // G115: two's complement is the wire form
}

// module is a minimal section-level encoder.
type module struct {
	types     [][]byte
	imports   [][]byte
	funcTypes []uint32
	codes     [][]byte
	globals   [][]byte
	exports   [][]byte
	datas     [][]byte
	customs   [][]byte
	memPages  uint32
	hasMemory bool
}

func newModule() *module {
	return &module{}
}

func (m *module) typeIndex(params, results []byte) uint32 {
	enc := []byte{0x60}
	enc = appendU32(enc, uint32(len(params))) //nolint:gosec // G115: tiny
	enc = append(enc, params...)
	enc = appendU32(enc, uint32(len(results))) //nolint:gosec // G115: tiny
	enc = append(enc, results...)
	for i, t := range m.types {
		if string(t) == string(enc) {
			return uint32(i) //nolint:gosec // G115: tiny
		}
	}
	m.types = append(m.types, enc)
	return uint32(len(m.types) - 1) //nolint:gosec // G115: tiny
}

func (m *module) importFunc(modName, name string, typeIdx uint32) {
	enc := appendName(nil, modName)
	enc = appendName(enc, name)
	enc = append(enc, exportFunc)
	enc = appendU32(enc, typeIdx)
	m.imports = append(m.imports, enc)
}

// function adds a defined function and returns its index in the function
// index space, which counts imports first.
func (m *module) function(typeIdx uint32, locals []byte, body []byte) uint32 {
	m.funcTypes = append(m.funcTypes, typeIdx)

	var code []byte
	code = appendU32(code, uint32(len(locals))) //nolint:gosec // G115: tiny
	for _, l := range locals {
		code = append(code, 0x01, l)
	}
	code = append(code, body...)
	code = append(code, opEnd)

	m.codes = append(m.codes, appendU32(nil, uint32(len(code)))) //nolint:gosec // G115: tiny
	m.codes[len(m.codes)-1] = append(m.codes[len(m.codes)-1], code...)
	return uint32(len(m.imports) + len(m.funcTypes) - 1) //nolint:gosec // G115: tiny
}

func (m *module) memory(pages uint32) {
	m.hasMemory = true
	m.memPages = pages
}

func (m *module) global(valType byte, init int64) uint32 {
	enc := []byte{valType, 0x01}
	if valType == valI64 {
		enc = append(enc, opI64Const)
	} else {
		enc = append(enc, opI32Const)
	}
	enc = appendS64(enc, init)
	enc = append(enc, opEnd)
	m.globals = append(m.globals, enc)
	return uint32(len(m.globals) - 1) //nolint:gosec // G115: tiny
}

func (m *module) export(name string, kind byte, idx uint32) {
	enc := appendName(nil, name)
	enc = append(enc, kind)
	enc = appendU32(enc, idx)
	m.exports = append(m.exports, enc)
}

func (m *module) data(offset uint32, payload []byte) {
	enc := []byte{0x00, opI32Const}
	enc = appendS64(enc, int64(offset))
	enc = append(enc, opEnd)
	enc = appendU32(enc, uint32(len(payload))) //nolint:gosec // G115: small payloads
	enc = append(enc, payload...)
	m.datas = append(m.datas, enc)
}

func (m *module) custom(name string, payload []byte) {
	enc := appendName(nil, name)
	m.customs = append(m.customs, append(enc, payload...))
}

func (m *module) encode() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = appendVecSection(out, sectionType, m.types)
	out = appendVecSection(out, sectionImport, m.imports)

	funcs := make([][]byte, len(m.funcTypes))
	for i, t := range m.funcTypes {
		funcs[i] = appendU32(nil, t)
	}
	out = appendVecSection(out, sectionFunction, funcs)

	if m.hasMemory {
		limits := appendU32([]byte{0x00}, m.memPages)
		out = appendVecSection(out, sectionMemory, [][]byte{limits})
	}
	out = appendVecSection(out, sectionGlobal, m.globals)
	out = appendVecSection(out, sectionExport, m.exports)
	out = appendVecSection(out, sectionCode, m.codes)
	out = appendVecSection(out, sectionData, m.datas)
	for _, c := range m.customs {
		out = AppendSection(out, sectionCustom, c)
	}
	return out
}

func appendVecSection(out []byte, id byte, items [][]byte) []byte {
	if len(items) == 0 {
		return out
	}
	body := appendU32(nil, uint32(len(items))) //nolint:gosec // G115: tiny
	for _, item := range items {
		body = append(body, item...)
	}
	return AppendSection(out, id, body)
}

// AppendSection appends a raw section with its LEB128 size prefix.
func AppendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(body))) //nolint:gosec // G115: test sections are small
	return append(out, body...)
}

// CustomSection encodes a custom section (id 0) with the given name.
func CustomSection(name string, payload []byte) []byte {
	return AppendSection(nil, sectionCustom, append(appendName(nil, name), payload...))
}

// Header is the wasm magic and version 1.
func Header() []byte {
	return []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s))) //nolint:gosec // G115: short names
	return append(b, s...)
}

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

func appendS64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
