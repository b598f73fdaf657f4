// pkg/vm_err/wrap.go

package vm_err

import (
	cerr "github.com/cockroachdb/errors"
)

// WrapStep annotates err with the pipeline step that produced it. The
// classification of err is preserved.
func WrapStep(err error, pipeline, step string) error {
	if err == nil {
		return nil
	}
	return cerr.WithHintf(cerr.Wrapf(err, "%s: step %q", pipeline, step),
		"pipeline %q stopped at step %q; earlier steps remain applied", pipeline, step)
}

// UserMessage returns the most helpful rendering of err for the terminal.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if hints := cerr.FlattenHints(err); hints != "" {
		msg += "\nHint: " + hints
	}
	var classified *ClassifiedError
	if cerr.As(err, &classified) && len(classified.Remediation) > 0 {
		msg += "\n" + classified.Detail()[len(classified.Error()):]
	}
	return msg
}
