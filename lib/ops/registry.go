package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var log = logger.GetLogger("ops")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Call is the input of a handler
type Call struct {
	// Operation is the name the call was dispatched under
	Operation string
	// Params is the validated parameter bag (a JSON object)
	Params json.RawMessage
	// Session is the connection session, used directly by lifecycle operations
	Session *session.Session
	// Conn is the live handle. It is nil for lifecycle operations.
	Conn store.IConn
}

// ExecFunc executes an operation
type ExecFunc func(ctx context.Context, call *Call) (Result, error)

// Descriptor is the static registration entry of an operation
type Descriptor struct {
	Name        string
	Description string
	Schema      Schema
	// Lifecycle operations manage the session themselves and bypass the lazy connect gate
	Lifecycle bool
	Exec      ExecFunc
}

// Result is the outcome of a successful operation
type Result struct {
	// Value is the structured payload (documents, counts, ids, ...)
	Value any
	// Text is a one line human readable summary
	Text string
}

// JSON renders the value as relaxed Extended JSON
func (r Result) JSON() (json.RawMessage, error) {
	return RenderJSON(r.Value)
}

// RenderJSON renders any value the store returns (bson.D, ObjectID, dates, ...) as
// relaxed Extended JSON.
func RenderJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.V, nil
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Operation is a registered descriptor with its compiled parameter schema
type Operation struct {
	Descriptor
	validator *jsonschema.Schema
}

// Validate checks params against the operation schema
func (o *Operation) Validate(params json.RawMessage) error {
	return validate(o.Name, o.validator, params)
}

// Prepare validates params and decodes the parameters every operation shares
func (o *Operation) Prepare(params json.RawMessage) (Common, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	if err := o.Validate(params); err != nil {
		return Common{}, err
	}
	var common Common
	if err := json.Unmarshal(params, &common); err != nil {
		return Common{}, &errs.InvalidParametersError{Operation: o.Name, Violations: []string{err.Error()}}
	}
	return common, nil
}

// Registry maps operation names to operations. It is built once and read concurrently.
type Registry struct {
	ops *xsync.MapOf[string, *Operation]
}

// NewRegistry compiles and registers the given descriptors
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{ops: xsync.NewMapOf[string, *Operation]()}
	for _, d := range descriptors {
		if d.Name == "" || d.Exec == nil {
			return nil, fmt.Errorf("operation %q: name and exec are required", d.Name)
		}
		validator, err := compile(d.Name, d.Schema)
		if err != nil {
			return nil, err
		}
		if _, loaded := r.ops.LoadOrStore(d.Name, &Operation{Descriptor: d, validator: validator}); loaded {
			return nil, fmt.Errorf("operation %q registered twice", d.Name)
		}
	}
	log.Debugf("registered %d operations", r.ops.Size())
	return r, nil
}

// NewDefaultRegistry returns a registry holding every built-in operation
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		// the built-in schemas are static, this is a programming error
		panic(err)
	}
	return r
}

// Builtin returns the descriptors of all built-in operations
func Builtin() []Descriptor {
	var all []Descriptor
	all = append(all, connectionOps()...)
	all = append(all, adminOps()...)
	all = append(all, crudOps()...)
	all = append(all, aggregateOps()...)
	all = append(all, indexOps()...)
	all = append(all, userOps()...)
	return all
}

// Lookup returns the operation registered under name
func (r *Registry) Lookup(name string) (*Operation, bool) {
	return r.ops.Load(name)
}

// Operations returns all operations sorted by name
func (r *Registry) Operations() []*Operation {
	out := make([]*Operation, 0, r.ops.Size())
	r.ops.Range(func(_ string, op *Operation) bool {
		out = append(out, op)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all operation names sorted
func (r *Registry) Names() []string {
	ops := r.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}

// --------------------------------------------------------------------------
// Handler Binding
// --------------------------------------------------------------------------

// paramError marks a parameter that passed the schema but could not be decoded
// (e.g. malformed Extended JSON)
type paramError struct {
	field string
	err   error
}

func (e *paramError) Error() string { return fmt.Sprintf("at '/%s': %v", e.field, e.err) }

func invalidParam(field string, err error) error {
	return &paramError{field: field, err: err}
}

func decodeParams(call *Call, p any) error {
	params := call.Params
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, p); err != nil {
		return &errs.InvalidParametersError{Operation: call.Operation, Violations: []string{err.Error()}}
	}
	return nil
}

// wrapError turns a handler error into a typed error of the errs package
func wrapError(operation string, p any, err error) error {
	var pErr *paramError
	if errors.As(err, &pErr) {
		return &errs.InvalidParametersError{Operation: operation, Violations: []string{pErr.Error()}}
	}
	var kinded errs.Kinded
	if errors.As(err, &kinded) {
		return err
	}
	return &errs.StoreOperationError{Operation: operation, Target: targetOf(p), Cause: err}
}

func targetOf(p any) string {
	if t, ok := p.(targeted); ok {
		return t.target().String()
	}
	return ""
}

// bind adapts a typed handler running against the live handle
func bind[P any](fn func(ctx context.Context, p P, conn store.IConn) (Result, error)) ExecFunc {
	return func(ctx context.Context, call *Call) (Result, error) {
		var p P
		if err := decodeParams(call, &p); err != nil {
			return Result{}, err
		}
		if call.Conn == nil {
			return Result{}, &errs.NotConnectedError{Reason: "no connection handle"}
		}
		res, err := fn(ctx, p, call.Conn)
		if err != nil {
			return Result{}, wrapError(call.Operation, p, err)
		}
		return res, nil
	}
}

// bindSession adapts a typed lifecycle handler running against the session
func bindSession[P any](fn func(ctx context.Context, p P, s *session.Session) (Result, error)) ExecFunc {
	return func(ctx context.Context, call *Call) (Result, error) {
		var p P
		if err := decodeParams(call, &p); err != nil {
			return Result{}, err
		}
		res, err := fn(ctx, p, call.Session)
		if err != nil {
			return Result{}, wrapError(call.Operation, p, err)
		}
		return res, nil
	}
}
