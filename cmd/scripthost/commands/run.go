package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/scripthost/domain/entities"
	domainerrors "github.com/reglet-dev/scripthost/domain/errors"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <module> <declaration> [json-args...]",
		Short: "Call one function of a module",
		Long: `Load a module, bind one function by its declaration and call it.

Arguments are JSON values coerced to the declared parameter types. The
watchdog applies the configured suspend timeout.

Example:
  scripthost run combat "int Attack(uint,uint)" 5 7`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, declaration := args[0], args[1]
			decl, err := entities.ParseDeclaration(declaration)
			if err != nil {
				return err
			}
			callArgs, err := parseArgs(args[2:])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := a.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(ctx) }()
			go func() { _ = rt.Start(ctx) }()

			if !entities.IsNativeTarget(module) {
				if err := rt.LoadScript(ctx, module); err != nil {
					return err
				}
			}
			h := rt.Bind(module, decl.Name, declaration, false)
			if h == entities.HandleNone {
				return rt.LastBindError()
			}

			th := rt.NewThread()
			defer th.Close()
			v, err := th.Call(h, "cli "+decl.Name, callArgs...)
			if err != nil {
				a.reportFailure(cmd.OutOrStdout(), decl.Name, err)
				return err
			}

			result := "void"
			if !v.IsVoid() {
				result = v.String()
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.styles.Dim.Render(decl.String()+" =")+" "+a.styles.Title.Render(result))
			return nil
		},
	}
}

// reportFailure prints a failed call with its script stack.
func (a *app) reportFailure(w io.Writer, function string, err error) {
	detail := domainerrors.ToErrorDetail(err)
	a.logger.Error("call failed", "function", function, "error", detail)
	a.styles.failure(w, function, detail.Error())
	for _, frame := range detail.Stack {
		fmt.Fprintln(w, "    "+a.styles.Dim.Render(frame))
	}
}

// parseArgs decodes each argument as JSON. Integral numbers become int64.
func parseArgs(raw []string) ([]any, error) {
	args := make([]any, len(raw))
	for i, s := range raw {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		if n, ok := v.(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				v = iv
			} else if fv, err := n.Float64(); err == nil {
				v = fv
			} else {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
		}
		args[i] = v
	}
	return args, nil
}
