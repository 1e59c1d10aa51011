package serialization

import (
	"errors"

	"github.com/goccy/go-json"

	core "landscapesim/pkg/batch/job/core"
	"landscapesim/pkg/batch/util/exception"
)

const module = "serialization"

// Marshal encodes v as JSON.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, exception.NewBatchError(module, "JSON encoding failed", err, false, false)
	}
	return data, nil
}

// Unmarshal decodes JSON data into v. Empty input and "null" leave v untouched.
func Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return exception.NewBatchError(module, "JSON decoding failed", err, false, false)
	}
	return nil
}

// MarshalExecutionContext encodes ec. A nil context encodes as "{}".
func MarshalExecutionContext(ec core.ExecutionContext) ([]byte, error) {
	if ec == nil {
		return []byte("{}"), nil
	}
	return Marshal(ec)
}

// UnmarshalExecutionContext decodes data into a fresh ExecutionContext.
func UnmarshalExecutionContext(data []byte) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	if err := Unmarshal(data, &ec); err != nil {
		return nil, err
	}
	return ec, nil
}

// MarshalJobParameters encodes the parameter map.
func MarshalJobParameters(params core.JobParameters) ([]byte, error) {
	if params.Params == nil {
		return []byte("{}"), nil
	}
	return Marshal(params.Params)
}

// UnmarshalJobParameters decodes data into JobParameters.
func UnmarshalJobParameters(data []byte) (core.JobParameters, error) {
	params := core.NewJobParameters()
	if err := Unmarshal(data, &params.Params); err != nil {
		return core.JobParameters{}, err
	}
	if params.Params == nil {
		params.Params = make(map[string]interface{})
	}
	return params, nil
}

// MarshalFailures encodes error messages, since errors do not survive JSON.
func MarshalFailures(failures []error) ([]byte, error) {
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Error())
	}
	return Marshal(msgs)
}

// UnmarshalFailures decodes messages written by MarshalFailures.
func UnmarshalFailures(data []byte) ([]error, error) {
	var msgs []string
	if err := Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	failures := make([]error, 0, len(msgs))
	for _, m := range msgs {
		failures = append(failures, errors.New(m))
	}
	return failures, nil
}
