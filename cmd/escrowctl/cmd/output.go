package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	stepColor = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
)

// render writes v as json or yaml, or calls text for the default format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", okColor.Sprint("✓"), fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnColor.Sprint("!"), fmt.Sprintf(format, args...))
}

func field(w io.Writer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", dimColor.Sprintf("%-16s", name+":"), value)
}
