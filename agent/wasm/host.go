package wasm

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/hupe1980/gambit/core"
)

type callStateKey struct{}

// callState carries the capabilities of one guest call and the first host
// error raised during it.
type callState struct {
	caps core.Capabilities
	err  error
}

func withCallState(ctx context.Context, st *callState) context.Context {
	return context.WithValue(ctx, callStateKey{}, st)
}

func stateFrom(ctx context.Context) *callState {
	st, _ := ctx.Value(callStateKey{}).(*callState)
	return st
}

// abort records err and unwinds the guest.
func abort(st *callState, err error) {
	if st.err == nil {
		st.err = err
	}
	panic(err)
}

func capsFrom(ctx context.Context) (*callState, core.Capabilities) {
	st := stateFrom(ctx)
	if st == nil {
		st = &callState{}
	}
	if st.caps == nil {
		abort(st, core.ErrNoSessionBound)
	}
	return st, st.caps
}

// writeBuffer copies up to capacity bytes of data into guest memory and
// returns the full length so guests can retry with a larger buffer.
func writeBuffer(st *callState, m api.Module, ptr, capacity uint32, data []byte) uint32 {
	n := uint32(len(data))
	if n > capacity {
		return n
	}
	if !m.Memory().Write(ptr, data) {
		abort(st, errOutOfRange)
	}
	return n
}

func instantiateHost(ctx context.Context, r wazero.Runtime) error {
	b := r.NewHostModuleBuilder(HostModule)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, capacity uint32) uint32 {
		st, caps := capsFrom(ctx)
		board, err := caps.Board()
		if err != nil {
			abort(st, err)
		}
		data, err := json.Marshal(board)
		if err != nil {
			abort(st, err)
		}
		return writeBuffer(st, m, ptr, capacity, data)
	}).Export(ImportBoard)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, capacity uint32) uint32 {
		st, caps := capsFrom(ctx)
		moves, err := caps.LegalMoves()
		if err != nil {
			abort(st, err)
		}
		data, err := json.Marshal(moves)
		if err != nil {
			abort(st, err)
		}
		return writeBuffer(st, m, ptr, capacity, data)
	}).Export(ImportLegalMoves)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, capacity uint32) uint32 {
		st, caps := capsFrom(ctx)
		fen, err := caps.Position()
		if err != nil {
			abort(st, err)
		}
		return writeBuffer(st, m, ptr, capacity, []byte(fen))
	}).Export(ImportPosition)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) uint32 {
		st, caps := capsFrom(ctx)
		check, err := caps.InCheck()
		if err != nil {
			abort(st, err)
		}
		if check {
			return 1
		}
		return 0
	}).Export(ImportInCheck)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context) uint32 {
		st, caps := capsFrom(ctx)
		res, err := caps.GameResult()
		if err != nil {
			abort(st, err)
		}
		return resultCode(res)
	}).Export(ImportGameResult)

	b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, length uint32) {
		st, caps := capsFrom(ctx)
		msg, ok := m.Memory().Read(ptr, length)
		if !ok {
			abort(st, errOutOfRange)
		}
		if err := caps.Log(string(msg)); err != nil {
			abort(st, err)
		}
	}).Export(ImportLog)

	_, err := b.Instantiate(ctx)
	return err
}
