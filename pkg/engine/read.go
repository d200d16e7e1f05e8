package engine

import (
	"fmt"

	"github.com/cuemby/keel/pkg/acceptor"
	"github.com/cuemby/keel/pkg/metrics"
	"github.com/cuemby/keel/pkg/types"
)

// Read dispatches cmd at targetIndex: immediately if targetIndex has
// already been applied, otherwise it parks the read until a future
// ApplyOp reaches it. Reads only support CommandExecute — a registered
// host function queries the handle without mutating it or advancing
// last_applied.
func (e *Engine) Read(targetIndex uint64, cmd types.Command) (types.Reply, error) {
	result := make(chan types.Reply, 1)
	err := e.submit(func() {
		pos := e.lastApplied
		if targetIndex <= pos.Index {
			result <- e.runRead(cmd, pos)
			return
		}
		e.queue.ParkRead(acceptor.ParkedRead{
			TargetIndex: targetIndex,
			Command:     cmd,
			Resolve:     func(r types.Reply) { result <- r },
		})
	})
	if err != nil {
		return types.Reply{}, err
	}
	return <-result, nil
}

// dispatchRead resolves a read that DrainReadsUpTo returned once applyOp
// advanced last_applied far enough to satisfy it. Runs on the worker
// goroutine, same as applyOp itself.
func (e *Engine) dispatchRead(parked acceptor.ParkedRead, pos types.LogPosition) {
	parked.Resolve(e.runRead(parked.Command, pos))
}

func (e *Engine) runRead(cmd types.Command, pos types.LogPosition) types.Reply {
	reply, err := e.readDispatch(cmd, pos)
	if err != nil {
		return types.Failed(err)
	}
	return types.OK(reply)
}

func (e *Engine) readDispatch(cmd types.Command, pos types.LogPosition) ([]byte, error) {
	if cmd.Kind != types.CommandExecute {
		return nil, fmt.Errorf("%w: reads only support execute commands, got %q", types.ErrUnknownCommand, cmd.Kind)
	}
	ex := cmd.Execute
	reply, err := e.registry.Invoke(ex.Module, ex.Function, e.handle, pos, ex.Table, ex.Args)
	if err != nil {
		metrics.ExecuteErrorsTotal.WithLabelValues(ex.Module, ex.Function).Inc()
		return nil, fmt.Errorf("read execute %s.%s: %w", ex.Module, ex.Function, err)
	}
	return reply, nil
}
