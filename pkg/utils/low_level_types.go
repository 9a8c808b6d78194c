package utils

import "fmt"

// XError annotates a low level failure with what was being attempted.
type XError struct {
	Reason string
	Meta   error
}

func (xe XError) Error() string {
	return fmt.Sprintf("xerror: %v: %v", xe.Reason, xe.Meta)
}

func (xe XError) Unwrap() error {
	return xe.Meta
}

func (xe XError) ToError() error {
	return xe
}
