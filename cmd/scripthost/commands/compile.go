package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// compilerDefine is set while compiling so scripts can skip runtime-only code.
const compilerDefine = "__COMPILER"

func newCompileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile [module...]",
		Short: "Compile modules into the module cache",
		Long: `Compile modules and persist them to the module cache.

Without arguments every module listed in the configuration is compiled.
The preprocessor symbol __COMPILER is defined and native libraries are
initialised in compile-only mode.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modules := args
			if len(modules) == 0 {
				modules = a.cfg.Modules
			}
			if len(modules) == 0 {
				return fmt.Errorf("no modules given and none configured")
			}

			out := cmd.OutOrStdout()
			if !a.cfg.Cache.Enabled {
				fmt.Fprintln(out, a.styles.Dim.Render("module cache disabled, nothing will be persisted"))
			}

			defines := slices.Clone(a.cfg.Defines)
			if !slices.Contains(defines, compilerDefine) {
				defines = append(defines, compilerDefine)
			}
			rt, err := a.newRuntime(cmd.Context(),
				entities.WithDefines(defines...),
				entities.WithCompileOnly(true),
				entities.WithGC(false),
			)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(cmd.Context()) }()

			fmt.Fprintln(out, a.styles.Title.Render("Compiling modules"))
			failed := 0
			for _, name := range modules {
				if err := rt.LoadScript(cmd.Context(), name); err != nil {
					failed++
					a.styles.failure(out, name, err.Error())
					continue
				}
				info, _ := rt.Module(name)
				source := "compiled"
				if info.FromCache {
					source = "up to date"
				}
				a.styles.success(out, name, source+": "+strings.Join(info.Functions, ", "))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d modules failed to compile", failed, len(modules))
			}
			return nil
		},
	}
}
