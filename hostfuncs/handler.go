package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

// Handler is a host function. Arguments arrive coerced to the declared
// parameter types.
type Handler = ports.NativeFunc

// HostFunc is a typed host function that exchanges JSON documents with scripts.
type HostFunc[Req any, Resp any] func(context.Context, Req) (Resp, error)

// JSONDeclaration is the declaration every JSON handler is registered with.
const JSONDeclaration = "string %s(string)"

// NewJSONHandler wraps a typed HostFunc into a Handler. The script passes one
// JSON string and receives the marshalled response.
//
// Usage:
//
//	lookup := hostfuncs.NewJSONHandler(func(ctx context.Context, req ItemQuery) (ItemInfo, error) {
//	    return inventory.Find(ctx, req.ID)
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) Handler {
	return func(ctx context.Context, args []entities.Value) (entities.Value, error) {
		if len(args) != 1 {
			return entities.Void, fmt.Errorf("expected 1 argument, got %d", len(args))
		}

		var req Req
		if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
			return entities.Void, fmt.Errorf("failed to unmarshal request: %w", err)
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return entities.Void, err
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			return entities.Void, fmt.Errorf("failed to marshal response: %w", err)
		}
		return entities.StringValue(string(respBytes)), nil
	}
}

// Function is a registered host function.
type Function struct {
	Handler Handler
	Decl    entities.Declaration
}

// Call coerces args to the declared parameter types and invokes the handler.
func (f *Function) Call(ctx context.Context, args []entities.Value) (entities.Value, error) {
	if len(args) != len(f.Decl.Params) {
		return entities.Void, NewValidationError(f.Decl.Name,
			fmt.Sprintf("expected %d arguments, got %d", len(f.Decl.Params), len(args)))
	}
	coerced := make([]entities.Value, len(args))
	for i, arg := range args {
		v, err := arg.Coerce(f.Decl.Params[i])
		if err != nil {
			return entities.Void, NewValidationError(f.Decl.Name, fmt.Sprintf("argument %d: %v", i+1, err))
		}
		coerced[i] = v
	}

	ret, err := f.Handler(NewHostContext(ctx, f.Decl.Name), coerced)
	if err != nil {
		return entities.Void, err
	}
	if f.Decl.Return.Kind() == entities.KindVoid {
		return entities.Void, nil
	}
	return ret.Coerce(f.Decl.Return)
}
