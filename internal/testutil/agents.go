package testutil

// StaticWasmAgent builds a compiled agent named name that always plays move.
func StaticWasmAgent(name, move string) []byte {
	return WasmModule{
		MemoryPages:  1,
		ExportMemory: true,
		Data: []WasmData{
			{Offset: 0, Bytes: []byte(name)},
			{Offset: 256, Bytes: []byte(move)},
		},
		Funcs: []WasmFunc{
			{Export: "get_name", Results: []byte{I64}, Body: Packed(0, uint32(len(name)))},
			{Export: "select_move", Results: []byte{I64}, Body: Packed(256, uint32(len(move)))},
		},
	}.Encode()
}

// EchoPositionWasmAgent builds a compiled agent whose select_move returns
// the current position read through the host import, after logging "echo".
func EchoPositionWasmAgent() []byte {
	const buf = 1024
	return WasmModule{
		Imports: []WasmImport{
			{Module: "gambit", Name: "position", Params: []byte{I32, I32}, Results: []byte{I32}},
			{Module: "gambit", Name: "log", Params: []byte{I32, I32}},
		},
		MemoryPages:  1,
		ExportMemory: true,
		Data:         []WasmData{{Offset: 0, Bytes: []byte("echo")}},
		Funcs: []WasmFunc{
			{
				Export:  "select_move",
				Results: []byte{I64},
				Body: Concat(
					I32Const(0), I32Const(4), Call(1),
					I32Const(buf), I32Const(256), Call(0),
					[]byte{OpI64ExtendU},
					I64Const(int64(uint64(buf)<<32)),
					[]byte{OpI64Or},
				),
			},
			{Export: "get_preferred_side", Results: []byte{I32}, Body: I32Const(2)},
		},
	}.Encode()
}

// SpinningWasmAgent builds a compiled agent whose select_move never returns.
func SpinningWasmAgent() []byte {
	return WasmModule{
		MemoryPages:  1,
		ExportMemory: true,
		Funcs:        []WasmFunc{{Export: "select_move", Results: []byte{I64}, Body: Spin()}},
	}.Encode()
}

// TrappingWasmAgent builds a compiled agent whose select_move traps.
func TrappingWasmAgent() []byte {
	return WasmModule{
		MemoryPages:  1,
		ExportMemory: true,
		Funcs:        []WasmFunc{{Export: "select_move", Results: []byte{I64}, Body: Trap()}},
	}.Encode()
}

// NoDecisionWasmAgent builds a valid module lacking select_move.
func NoDecisionWasmAgent() []byte {
	return WasmModule{
		MemoryPages:  1,
		ExportMemory: true,
		Funcs:        []WasmFunc{{Export: "get_name", Results: []byte{I64}, Body: Packed(0, 0)}},
	}.Encode()
}

// StaticScriptAgent is an interpreted agent that always plays move.
func StaticScriptAgent(name, move string) []byte {
	return []byte(`function getName() { return "` + name + `"; }
function selectMove() { return "` + move + `"; }
`)
}

// FirstMoveScriptAgent plays the first legal move it is offered.
const FirstMoveScriptAgent = `function getName() { return "First"; }
function getDescription() { return "Plays the first legal move."; }
function selectMove() {
  var moves = host.getLegalMoves();
  return moves[0];
}
`
