package topics

import "fmt"

// InvalidOperatorError is returned by New when the operator is not one of
// the supported five.
type InvalidOperatorError struct {
	Operator Operator
}

func (e *InvalidOperatorError) Error() string {
	return fmt.Sprintf("unknown topic rule operator %q", string(e.Operator))
}
