package errors

import "errors"

// Report is a flattened view of an error chain for structured logging.
type Report struct {
	Code       string
	TopMessage string
	Chain      []string
}

// Dump walks the error chain and returns a loggable report.
func Dump(err error) Report {
	report := Report{}
	if err == nil {
		return report
	}
	report.TopMessage = err.Error()
	if typed := As(err); typed != nil {
		report.Code = string(typed.Code())
	}
	for current := err; current != nil; current = errors.Unwrap(current) {
		report.Chain = append(report.Chain, current.Error())
	}
	return report
}
