package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// report is one gateway response as adminctl prints it. With -o json or
// -o yaml the response value is printed as the gateway sent it; otherwise
// rows are printed under headers, followed by an optional note.
type report struct {
	value   any
	headers []string
	rows    [][]string
	note    string
}

func (r report) write(w io.Writer) error {
	switch outputFmt {
	case "json":
		return printJSON(w, r.value)
	case "yaml":
		return printYAML(w, r.value)
	case "table", "":
		printTable(w, r.headers, r.rows)
		if r.note != "" {
			fmt.Fprintf(w, "\n%s\n", r.note)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (use table, json or yaml)", outputFmt)
	}
}

// fieldReport prints a single object as Field/Value pairs, skipping empty
// values.
func fieldReport(value any, pairs ...[2]string) report {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] != "" {
			rows = append(rows, []string{p[0], p[1]})
		}
	}
	return report{value: value, headers: []string{"Field", "Value"}, rows: rows}
}

// actionReport renders the result of an accepted or completed action.
func actionReport(res *actionResult) report {
	return fieldReport(res,
		[2]string{"Request", res.RequestID},
		[2]string{"Action", res.Action},
		[2]string{"Server", res.ResourceID},
		[2]string{"Status", res.Status},
		[2]string{"Location", res.Location},
	)
}

// errorEnvelope mirrors the gateway's error body so structured output of a
// failure reads the same as the server's.
type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind,omitempty"`
		Message string `json:"message"`
		Reason  string `json:"reason,omitempty"`
	} `json:"error"`
	Code int `json:"code"`
}

// printError writes err to w. Gateway failures keep their envelope under
// json and yaml output; everything else is a single line.
func printError(w io.Writer, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	if outputFmt == "json" || outputFmt == "yaml" {
		var env errorEnvelope
		env.Error.Kind = apiErr.Kind
		env.Error.Message = apiErr.Message
		env.Error.Reason = apiErr.Reason
		env.Code = apiErr.Status
		if (report{value: env}).write(w) == nil {
			return
		}
	}
	fmt.Fprintln(w, "Error:", err)
	if hint := errorHint(apiErr); hint != "" {
		fmt.Fprintln(w, "Hint:", hint)
	}
}

// errorHint suggests a next step for the error kinds a caller can act on.
func errorHint(e *apiError) string {
	switch e.Kind {
	case "Forbidden":
		return "the caller's role does not allow this; retry with --role or a token carrying a higher role"
	case "StateConflict":
		return "check the server's current state with 'adminctl history'"
	case "UnavailableDependency":
		return "the compute service is unavailable; retry later"
	case "QuotaExceeded":
		return "reduce the number of metadata items"
	default:
		return ""
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v any) error {
	// Round-trip through JSON so keys follow the json tags.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(m)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// truncate shortens a string to max length, appending "..." if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
