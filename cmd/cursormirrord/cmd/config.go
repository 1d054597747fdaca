package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cursormirror/cursormirrord/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing cursormirrord configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  cursormirrord config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, .cursormirrord.yaml, /etc/cursormirrord/config.yaml)
  - Environment variables (CURSORMIRROR_SERVER_PORT, CURSORMIRROR_AUTH_METHOD, etc.)
  - Command-line flags (for some options)

Environment variables use the CURSORMIRROR_ prefix and underscores for nesting.
Example: server.port -> CURSORMIRROR_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# cursormirrord Configuration File")
	fmt.Println("# ================================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   CURSORMIRROR_SERVER_HOST, CURSORMIRROR_SERVER_PORT")
	fmt.Println("#   CURSORMIRROR_AUTH_METHOD, CURSORMIRROR_AUTH_USERNAME, CURSORMIRROR_AUTH_PASSWORD")
	fmt.Println("#   CURSORMIRROR_LOGGING_LEVEL, CURSORMIRROR_LOGGING_FORMAT")
	fmt.Println("#   CURSORMIRROR_ENCODER_QUALITY, CURSORMIRROR_ENCODER_RETENTION")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
