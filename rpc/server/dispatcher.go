package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/ops"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/VictoriaMetrics/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/ValentinKolb/dDoc/rpc/server")

// --------------------------------------------------------------------------
// Reply
// --------------------------------------------------------------------------

// Reply is the rendered outcome of a dispatched call
type Reply struct {
	Operation string
	// Result is the structured value as relaxed Extended JSON. For failed calls
	// it holds the partial outcome reported by the store, if any.
	Result json.RawMessage
	Text   string
	Err    error
}

// Kind returns the error kind of a failed reply or "" on success
func (r *Reply) Kind() errs.Kind {
	return errs.KindOf(r.Err)
}

// OK reports whether the call succeeded
func (r *Reply) OK() bool {
	return r.Err == nil
}

// CatalogueEntry describes one operation for clients
type CatalogueEntry struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Lifecycle   bool       `json:"lifecycle,omitempty"`
	InputSchema ops.Schema `json:"inputSchema"`
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher is the single entry point of every call, whatever transport it came from.
// It is safe for concurrent use.
type Dispatcher struct {
	registry *ops.Registry
	session  *session.Session
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher routing calls through registry against session.
// A timeout of 0 disables the per call deadline.
func NewDispatcher(registry *ops.Registry, session *session.Session, timeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, session: session, timeout: timeout}
}

// Session returns the session owned by the dispatcher
func (d *Dispatcher) Session() *session.Session {
	return d.session
}

// Operations returns all registered operations sorted by name
func (d *Dispatcher) Operations() []*ops.Operation {
	return d.registry.Operations()
}

// Catalogue returns the description of every operation
func (d *Dispatcher) Catalogue() []CatalogueEntry {
	operations := d.registry.Operations()
	out := make([]CatalogueEntry, len(operations))
	for i, op := range operations {
		out[i] = CatalogueEntry{
			Name:        op.Name,
			Description: op.Description,
			Lifecycle:   op.Lifecycle,
			InputSchema: op.Schema,
		}
	}
	return out
}

// Dispatch runs the named operation with params (a JSON object, may be empty).
// It never panics and always returns a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params json.RawMessage) (reply *Reply) {
	start := time.Now()

	op, ok := d.registry.Lookup(name)
	if !ok {
		reply = &Reply{Operation: name, Err: &errs.UnknownOperationError{Operation: name}}
		observe("unknown", reply, time.Since(start))
		Logger.Debugf("rejected unknown operation %q", name)
		return reply
	}

	ctx, span := tracer.Start(ctx, "ddoc."+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("ddoc.operation", name)),
	)
	defer func() {
		if reply.Err != nil {
			span.RecordError(reply.Err)
			span.SetStatus(codes.Error, reply.Err.Error())
			span.SetAttributes(attribute.String("ddoc.error_kind", string(reply.Kind())))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		elapsed := time.Since(start)
		observe(name, reply, elapsed)
		if reply.Kind() == errs.KindInternal {
			Logger.Errorf("%s failed after %s: %v", name, elapsed, reply.Err)
		} else {
			Logger.Debugf("%s finished in %s (%s)", name, elapsed, resultLabel(reply))
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := d.run(ctx, op, params)
	if err != nil {
		err = d.classify(ctx, name, err)
		return &Reply{Operation: name, Result: partialOf(err), Err: err}
	}

	value, err := res.JSON()
	if err != nil {
		return &Reply{Operation: name, Err: fmt.Errorf("failed to render result of %s: %w", name, err)}
	}
	return &Reply{Operation: name, Result: value, Text: res.Text}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// run validates params, runs the gate and invokes the handler. Panics are recovered.
func (d *Dispatcher) run(ctx context.Context, op *ops.Operation, params json.RawMessage) (res ops.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("handler %s panicked: %v\n%s", op.Name, r, debug.Stack())
			err = fmt.Errorf("handler %s panicked: %v", op.Name, r)
		}
	}()

	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	common, err := op.Prepare(params)
	if err != nil {
		return ops.Result{}, err
	}

	call := &ops.Call{Operation: op.Name, Params: params, Session: d.session}
	if !op.Lifecycle {
		if err := d.session.EnsureConnected(ctx, common.URL); err != nil {
			return ops.Result{}, err
		}
		if call.Conn, err = d.session.Handle(); err != nil {
			return ops.Result{}, err
		}
	}
	return op.Exec(ctx, call)
}

// classify turns errors caused by the call deadline into timeouts
func (d *Dispatcher) classify(ctx context.Context, name string, err error) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) && !errs.IsDeadline(err) {
		return err
	}
	switch errs.KindOf(err) {
	case errs.KindInvalidParameters, errs.KindNotConnected, errs.KindTimeout:
		return err
	}
	return &errs.TimeoutError{Operation: name, After: d.timeout, Cause: err}
}

// partialOf renders the partial outcome carried by a store error
func partialOf(err error) json.RawMessage {
	var storeErr *errs.StoreOperationError
	if !errors.As(err, &storeErr) || storeErr.Partial == nil {
		return nil
	}
	partial, renderErr := ops.RenderJSON(storeErr.Partial)
	if renderErr != nil {
		Logger.Warningf("failed to render partial result of %s: %v", storeErr.Operation, renderErr)
		return nil
	}
	return partial
}
