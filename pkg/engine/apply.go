package engine

import (
	"fmt"

	"github.com/cuemby/keel/pkg/metrics"
	"github.com/cuemby/keel/pkg/types"
)

// ApplyOp enforces ordering and dispatches one committed log record. It
// blocks until the dispatch has run (or the engine rejects it outright),
// then resolves the commit promise keyed by record.Ref through the
// acceptor queue — but only if record.Term matches serverTerm, the term
// this instance is currently serving under. A record committed under an
// earlier term that outlived a leadership change still gets applied (the
// log entry is ordered and durable either way), but its reply is silently
// dropped: the client that submitted it is no longer this leader's
// responsibility. On success, it also drains any delayed reads the new
// position unblocks.
//
// A gap (record.Index > last_applied.Index+1) or a backend error is
// always fatal: last_applied does not advance, and the engine terminates
// rather than risk two replicas diverging on the same index.
func (e *Engine) ApplyOp(record types.LogRecord, serverTerm uint64) error {
	done := make(chan error, 1)
	err := e.submit(func() {
		done <- e.applyOp(record, serverTerm)
	})
	if err != nil {
		return err
	}
	return <-done
}

func (e *Engine) applyOp(record types.LogRecord, serverTerm uint64) error {
	expected := e.lastApplied.Index + 1

	if record.Index <= e.lastApplied.Index {
		// Redelivery of an already-applied index: leaves state and
		// metadata unchanged, and resolves nothing — the original
		// delivery already settled refA/refB.
		e.log.Debug().
			Uint64("index", record.Index).
			Uint64("last_applied", e.lastApplied.Index).
			Msg("ignoring redelivered apply at or before last_applied")
		return nil
	}

	if record.Index != expected {
		metrics.GapErrorsTotal.WithLabelValues(e.tableLabel, e.partitionLabel).Inc()
		e.log.Error().
			Uint64("expected", expected).
			Uint64("got", record.Index).
			Msg("gapped apply, terminating instance")
		gapErr := fmt.Errorf("%w: expected index %d, got %d", types.ErrGap, expected, record.Index)
		e.terminate(gapErr)
		return gapErr
	}

	timer := metrics.NewTimer()
	pos := record.Position()
	reply, err := e.dispatch(record.Command, pos)
	timer.ObserveDurationVec(metrics.ApplyDuration, e.tableLabel, e.partitionLabel)

	metrics.ApplyTotal.WithLabelValues(e.tableLabel, e.partitionLabel).Inc()

	if err != nil {
		metrics.ApplyErrorsTotal.WithLabelValues(e.tableLabel, e.partitionLabel).Inc()
		e.log.Error().Err(err).Str("position", pos.String()).Msg("backend apply failed, terminating instance")
		e.terminate(err)
		e.queue.ResolveCommit(record.Ref, types.Failed(err))
		return err
	}

	e.setLastApplied(pos)
	e.log.Debug().Str("position", pos.String()).Str("kind", string(record.Command.Kind)).Msg("applied")

	if record.Term == serverTerm {
		e.queue.ResolveCommit(record.Ref, types.OK(reply))
	} else {
		e.log.Debug().
			Uint64("record_term", record.Term).
			Uint64("server_term", serverTerm).
			Msg("dropping reply: client belongs to a since-superseded term")
	}
	for _, parked := range e.queue.DrainReadsUpTo(pos.Index) {
		e.dispatchRead(parked, pos)
	}
	return nil
}

// dispatch routes cmd to the right handler per its Kind, per the dispatch
// table: Noop and User commands go straight to the backend; Config
// commands are persisted as versioned metadata; Execute commands invoke a
// registered host function. Config and Execute both bypass backend.Apply,
// so the engine stamps the backend's recovery position itself afterward.
func (e *Engine) dispatch(cmd types.Command, pos types.LogPosition) ([]byte, error) {
	switch cmd.Kind {
	case types.CommandNoop, types.CommandUser:
		reply, next, err := e.be.Apply(cmd, pos, e.handle)
		if err != nil {
			return nil, err
		}
		e.handle = next
		return reply, nil

	case types.CommandConfig:
		if err := e.be.WriteMetadata(e.handle, types.MetadataKeyConfig, pos, cmd.Config); err != nil {
			return nil, fmt.Errorf("write config metadata: %w", err)
		}
		if err := e.be.AdvancePosition(e.handle, pos); err != nil {
			return nil, fmt.Errorf("advance position after config: %w", err)
		}
		return cmd.Config, nil

	case types.CommandExecute:
		ex := cmd.Execute
		reply, err := e.registry.Invoke(ex.Module, ex.Function, e.handle, pos, ex.Table, ex.Args)
		if err != nil {
			metrics.ExecuteErrorsTotal.WithLabelValues(ex.Module, ex.Function).Inc()
			return nil, fmt.Errorf("execute %s.%s: %w", ex.Module, ex.Function, err)
		}
		if err := e.be.AdvancePosition(e.handle, pos); err != nil {
			return nil, fmt.Errorf("advance position after execute: %w", err)
		}
		return reply, nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCommand, cmd.Kind)
	}
}
