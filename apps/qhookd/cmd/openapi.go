package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qhook/pkg/qapi"
	"github.com/quatton/qhook/pkg/qapi/routes"
	"github.com/spf13/cobra"
)

var (
	openapiOutput    string
	openapiFormat    string
	openapiDowngrade bool
)

var openapiCmd = &cobra.Command{
	Use:     "openapi",
	Aliases: []string{"spec"},
	Short:   "Print the OpenAPI document of the HTTP API",
	Long:    `Renders the OpenAPI document without loading scripts or connecting to a job backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api := qapi.NewApi(qapi.Options{})
		routes.RegisterAPI(api.Api, nil)

		doc, err := renderOpenAPI(api.Api.OpenAPI())
		if err != nil {
			return fmt.Errorf("failed to render OpenAPI document: %w", err)
		}
		if openapiOutput == "" {
			_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
			return err
		}
		return os.WriteFile(openapiOutput, doc, 0o644)
	},
}

func renderOpenAPI(doc *huma.OpenAPI) ([]byte, error) {
	switch {
	case openapiFormat == "yaml" && openapiDowngrade:
		return doc.DowngradeYAML()
	case openapiFormat == "yaml":
		return doc.YAML()
	case openapiFormat != "json":
		return nil, fmt.Errorf("unknown format %q", openapiFormat)
	case openapiDowngrade:
		return doc.Downgrade()
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
}

func init() {
	rootCmd.AddCommand(openapiCmd)
	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "", "write to a file instead of stdout")
	openapiCmd.Flags().StringVarP(&openapiFormat, "format", "f", "json", "json or yaml")
	openapiCmd.Flags().BoolVar(&openapiDowngrade, "downgrade", true, "emit OpenAPI 3.0 instead of 3.1")
}
