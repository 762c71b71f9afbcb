package dbos

import "strings"

// recordedStepError rehydrates an error string previously recorded in
// OperationOutputs.Error; callers only need Error(), never the original type.
type recordedStepError struct{ msg string }

func (e *recordedStepError) Error() string { return e.msg }

// isUDBSerializationFailure reports whether err surfaced from a UDB
// transaction is a transient serialization/deadlock failure that the
// Transaction step should retry transparently (§4.2, §7). Duplicated as the
// exported pkg/dbos/udb.IsSerializationFailure for applications; kept
// separate here because pkg/dbos/udb depends on this package and must not be
// depended on in return, so the check cannot be shared directly.
func isUDBSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"sqlstate 40001", "sqlstate 40p01", "serialization_failure", "deadlock detected"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
