package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/docwrite/internal/store"
	"github.com/atlekbai/docwrite/internal/update"
)

const (
	// WriteServiceName is the fully-qualified name of the write service.
	WriteServiceName = "docwrite.v1.WriteService"

	CompileProcedure          = "/" + WriteServiceName + "/Compile"
	UpdateProcedure           = "/" + WriteServiceName + "/Update"
	FindOneAndUpdateProcedure = "/" + WriteServiceName + "/FindOneAndUpdate"
	DeleteProcedure           = "/" + WriteServiceName + "/Delete"
)

// WriteService exposes the compiler and the executor over Connect. Requests
// and responses are structpb.Struct documents:
//
//	{"table": "posts", "selector": "id" | {...}, "modifier": {...},
//	 "limit": 1, "returnUpdated": false, "multi": false, "delete": false}
type WriteService struct {
	store *store.Store
}

func NewWriteService(st *store.Store) *WriteService {
	return &WriteService{store: st}
}

func (s *WriteService) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := connect.WithInterceptors(interceptors...)
	mux := http.NewServeMux()
	mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.Compile, opts))
	mux.Handle(UpdateProcedure, connect.NewUnaryHandler(UpdateProcedure, s.Update, opts))
	mux.Handle(FindOneAndUpdateProcedure, connect.NewUnaryHandler(FindOneAndUpdateProcedure, s.FindOneAndUpdate, opts))
	mux.Handle(DeleteProcedure, connect.NewUnaryHandler(DeleteProcedure, s.Delete, opts))
	return "/" + WriteServiceName + "/", mux
}

// Compile returns the statement a write would run, without running it.
func (s *WriteService) Compile(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := parseRequest(req.Msg, !boolField(req.Msg, "delete"))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	opts := update.Options{Limit: in.limit, ReturnUpdated: in.returnUpdated}
	var q *update.Query
	if in.delete {
		q, err = update.CompileDelete(s.store.Registry(), in.table, in.selector, opts)
	} else {
		q, err = update.Compile(s.store.Registry(), in.table, in.selector, in.modifier, opts)
	}
	if err != nil {
		return nil, toConnectError(err)
	}

	args := make([]any, len(q.Args))
	for i, a := range q.Args {
		args[i] = structValue(a)
	}
	return newResponse(map[string]any{"sql": q.SQL, "args": args})
}

// Update runs an update on one row, or every matching row when multi is set.
// It takes neither limit nor returnUpdated; use FindOneAndUpdate to get the
// updated row back.
func (s *WriteService) Update(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := parseRequest(req.Msg, true)
	if err == nil {
		err = in.reject("Update", "limit", "returnUpdated")
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	coll := s.store.Collection(in.table)
	var n int64
	if in.multi {
		n, err = coll.UpdateMany(ctx, in.selector, in.modifier)
	} else {
		n, err = coll.UpdateOne(ctx, in.selector, in.modifier)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return newResponse(map[string]any{"matched": n})
}

// FindOneAndUpdate updates one row and returns it as updated.
func (s *WriteService) FindOneAndUpdate(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := parseRequest(req.Msg, true)
	if err == nil {
		err = in.reject("FindOneAndUpdate", "limit", "multi")
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	doc, err := s.store.Collection(in.table).FindOneAndUpdate(ctx, in.selector, in.modifier)
	if err != nil {
		return nil, toConnectError(err)
	}
	if doc == nil {
		return newResponse(map[string]any{"document": nil})
	}
	out, err := jsonDocument(doc)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode document: %w", err))
	}
	return newResponse(map[string]any{"document": out})
}

// Delete removes matching rows, at most limit of them when limit is set.
func (s *WriteService) Delete(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := parseRequest(req.Msg, false)
	if err == nil {
		err = in.reject("Delete", "returnUpdated", "multi")
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	n, err := s.store.Collection(in.table).Delete(ctx, in.selector, in.limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newResponse(map[string]any{"deleted": n})
}

type writeRequest struct {
	table         string
	selector      update.Selector
	modifier      update.Modifier
	limit         int
	returnUpdated bool
	multi         bool
	delete        bool
}

func parseRequest(msg *structpb.Struct, needModifier bool) (*writeRequest, error) {
	if msg == nil {
		return nil, errors.New("empty request")
	}
	fields := msg.AsMap()

	in := &writeRequest{
		returnUpdated: boolField(msg, "returnUpdated"),
		multi:         boolField(msg, "multi"),
		delete:        boolField(msg, "delete"),
	}

	table, ok := fields["table"].(string)
	if !ok || table == "" {
		return nil, errors.New("table is required")
	}
	in.table = table

	switch sel := fields["selector"].(type) {
	case nil:
	case string:
		in.selector = update.ByID(sel)
	case map[string]any:
		in.selector = update.SelectorFromMap(sel)
	default:
		return nil, fmt.Errorf("selector must be an id or an object")
	}

	if needModifier {
		mod, ok := fields["modifier"].(map[string]any)
		if !ok {
			return nil, errors.New("modifier must be an object")
		}
		m, err := update.ModifierFromMap(mod)
		if err != nil {
			return nil, err
		}
		in.modifier = m
	}

	if v, ok := fields["limit"]; ok && v != nil {
		f, ok := v.(float64)
		if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return nil, fmt.Errorf("limit must be a non-negative integer")
		}
		in.limit = int(f)
	}
	return in, nil
}

// reject fails when any of the named options is set, so a request never
// silently drops an option the procedure does not honour.
func (in *writeRequest) reject(procedure string, names ...string) error {
	for _, name := range names {
		var set bool
		switch name {
		case "limit":
			set = in.limit != 0
		case "returnUpdated":
			set = in.returnUpdated
		case "multi":
			set = in.multi
		}
		if set {
			return fmt.Errorf("%s does not take %s", procedure, name)
		}
	}
	return nil
}

func boolField(msg *structpb.Struct, name string) bool {
	if msg == nil {
		return false
	}
	v, ok := msg.GetFields()[name]
	return ok && v.GetBoolValue()
}

func toConnectError(err error) error {
	if update.IsCompileError(err) {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func newResponse(m map[string]any) (*connect.Response[structpb.Struct], error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	return connect.NewResponse(st), nil
}

// structValue converts a bound argument to a value structpb accepts.
func structValue(v any) any {
	switch v := v.(type) {
	case nil, string, bool, float64, int, int64:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = structValue(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(v)
}

// jsonDocument turns a scanned row into plain JSON values.
func jsonDocument(doc map[string]any) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
