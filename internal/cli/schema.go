package cli

import (
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/lacquerai/mathutils/internal/server"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/spf13/cobra"
	"github.com/stoewer/go-strcase"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Output JSON schema of the server API",
	Long:   `Output the JSON schema of every request and response body served by mathutils-host serve.`,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		style.PrintJSON(cmd.OutOrStdout(), apiSchemas())
	},
}

func init() {
	hostCmd.AddCommand(schemaCmd)
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		KeyNamer: strcase.SnakeCase,
		Namer: func(t reflect.Type) string {
			return strcase.SnakeCase(t.Name())
		},
		ExpandedStruct: true,
	}
}

// apiSchemas returns one schema per API body, keyed by snake_case type name
func apiSchemas() map[string]*jsonschema.Schema {
	reflector := newReflector()

	types := []any{
		&server.RunRequest{},
		&server.RunResponse{},
		&server.OperationResponse{},
		&server.HealthResponse{},
		&server.ErrorResponse{},
		&execcontext.Record{},
	}

	schemas := make(map[string]*jsonschema.Schema, len(types))
	for _, t := range types {
		name := strcase.SnakeCase(reflect.TypeOf(t).Elem().Name())
		schemas[name] = reflector.Reflect(t)
	}
	return schemas
}
