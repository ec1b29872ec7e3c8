package wasm

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/hupe1980/gambit/core"
)

// HostModule is the import namespace agents link against.
const HostModule = "gambit"

// Guest exports.
const (
	ExportMemory           = "memory"
	ExportSelectMove       = "select_move"
	ExportSuggestMove      = "suggest_move"
	ExportGetName          = "get_name"
	ExportGetDescription   = "get_description"
	ExportGetPreferredSide = "get_preferred_side"
	ExportOnGameStart      = "on_game_start"
)

// Host imports.
const (
	ImportBoard      = "board"
	ImportLegalMoves = "legal_moves"
	ImportPosition   = "position"
	ImportInCheck    = "in_check"
	ImportGameResult = "game_result"
	ImportLog        = "log"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return equalTypes(s.params, def.ParamTypes()) && equalTypes(s.results, def.ResultTypes())
}

func (s signature) String() string {
	return fmt.Sprintf("%v -> %v", names(s.params), names(s.results))
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func names(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

var requiredExports = map[string]signature{
	ExportSelectMove: {results: []api.ValueType{i64}},
}

var optionalExports = map[string]signature{
	ExportSuggestMove:      {results: []api.ValueType{i64}},
	ExportGetName:          {results: []api.ValueType{i64}},
	ExportGetDescription:   {results: []api.ValueType{i64}},
	ExportGetPreferredSide: {results: []api.ValueType{i32}},
	ExportOnGameStart:      {},
}

var hostImports = map[string]signature{
	ImportBoard:      {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	ImportLegalMoves: {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	ImportPosition:   {params: []api.ValueType{i32, i32}, results: []api.ValueType{i32}},
	ImportInCheck:    {results: []api.ValueType{i32}},
	ImportGameResult: {results: []api.ValueType{i32}},
	ImportLog:        {params: []api.ValueType{i32, i32}},
}

// packed strings are returned as ptr<<32 | len
func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// Pack encodes a pointer and length the way guests return strings.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func resultCode(r core.GameResult) uint32 {
	switch r {
	case core.ResultCheckmate:
		return 1
	case core.ResultStalemate:
		return 2
	case core.ResultDraw:
		return 3
	default:
		return 0
	}
}

func sideFromCode(c uint32) core.Side {
	switch c {
	case 1:
		return core.SideWhite
	case 2:
		return core.SideBlack
	default:
		return core.SideNone
	}
}
