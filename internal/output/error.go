package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// ErrorOutput is the JSON shape of a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Kind       string            `json:"kind"`
	Retryable  bool              `json:"retryable"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// Describe flattens err for display. Errors that are not coded are reported
// as GENERAL_ERROR.
func Describe(err error) ErrorDetail {
	var ve *veilerr.VeilError
	if !errors.As(err, &ve) {
		return ErrorDetail{
			Code:     "GENERAL_ERROR",
			Message:  err.Error(),
			Kind:     veilerr.KindGeneral.String(),
			ExitCode: veilerr.ExitGeneral,
		}
	}

	d := ErrorDetail{
		Code:       ve.Code,
		Message:    veilerr.UserMessage(err),
		Kind:       ve.Kind.String(),
		Retryable:  ve.Retryable(),
		Details:    ve.Details,
		Suggestion: ve.Suggestion,
		ExitCode:   veilerr.ExitCode(err),
	}
	if ve.Cause != nil {
		d.Cause = ve.Cause.Error()
	}
	return d
}

// FormatError writes err in the given format.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	d := Describe(err)
	if format == FormatJSON {
		return WriteJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if d.Cause != "" {
		fmt.Fprintf(&sb, "  cause: %s\n", d.Cause)
	}
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, werr := io.WriteString(w, sb.String())
	return werr
}
