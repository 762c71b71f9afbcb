package udb

import "strings"

// IsSerializationFailure reports whether err is a PostgreSQL 40001
// (serialization_failure) or 40P01 (deadlock_detected), the two outcomes
// the Transaction step must retry transparently per §4.2/§7. Mirrors the
// unexported isUDBSerializationFailure in pkg/dbos, which cannot call this
// one because this package imports pkg/dbos.
func IsSerializationFailure(err error) bool {
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
