/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package dispatcher

import (
	"fmt"
	"time"
)

// IQTimeoutError is returned by SendIQ when no reply arrives in time.
// The session remains usable.
type IQTimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *IQTimeoutError) Error() string {
	return fmt.Sprintf("dispatcher: iq %s timed out after %v", e.ID, e.Timeout)
}

// DuplicateRequestError is returned by SendIQ when an in-flight request already uses the same identifier.
type DuplicateRequestError struct {
	ID string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("dispatcher: iq %s already pending", e.ID)
}
