package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("source", "", "must not be empty")

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected Type to be ErrorTypeValidation, got %v", err.Type)
	}

	expectedMsg := "invalid source: must not be empty"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	withValue := NewValidationError("key", "Hello", "source mismatch")
	expectedMsg = `invalid key "Hello": source mismatch`
	if withValue.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, withValue.Error())
	}

	wrapped := fmt.Errorf("insert: %w", err)
	if !IsValidation(wrapped) {
		t.Errorf("Expected wrapped error to be recognised as validation error")
	}
}

func TestCorruptStoreError(t *testing.T) {
	underlying := errors.New("unexpected EOF")
	err := NewCorruptStoreError("/tm/project_save.tmx", 12, 4, underlying)

	if err.Type != ErrorTypeCorrupt {
		t.Errorf("Expected Type to be ErrorTypeCorrupt, got %v", err.Type)
	}

	if err.Line != 12 || err.Column != 4 {
		t.Errorf("Expected Line/Column to be 12:4, got %d:%d", err.Line, err.Column)
	}

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := "corrupt TM at /tm/project_save.tmx:12:4: unexpected EOF"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}

	noLine := NewCorruptStoreError("", 0, 0, underlying)
	expectedMsg = "corrupt TM <stream>: unexpected EOF"
	if noLine.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, noLine.Error())
	}

	if !IsCorrupt(fmt.Errorf("load: %w", err)) {
		t.Errorf("Expected wrapped error to be recognised as corrupt store error")
	}
}

func TestFileError(t *testing.T) {
	underlying := fmt.Errorf("open: %w", fs.ErrPermission)
	err := NewFileError("write", "/path/to/file", underlying)

	if err.Type != ErrorTypePermission {
		t.Errorf("Expected Type to be ErrorTypePermission, got %v", err.Type)
	}

	if err.Operation != "write" {
		t.Errorf("Expected Operation to be 'write', got %s", err.Operation)
	}

	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Expected error to unwrap to fs.ErrPermission")
	}

	expectedMsg := "file write failed for /path/to/file: open: permission denied"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestFileErrorWithNotFound(t *testing.T) {
	err := NewFileError("stat", "/missing/file", fs.ErrNotExist)

	if err.Type != ErrorTypeFileNotFound {
		t.Errorf("Expected Type to be ErrorTypeFileNotFound, got %v", err.Type)
	}

	other := NewFileError("rename", "/tmp/x", errors.New("disk full"))
	if other.Type != ErrorTypeWrite {
		t.Errorf("Expected Type to be ErrorTypeWrite, got %v", other.Type)
	}
}

func TestConfigError(t *testing.T) {
	underlying := errors.New("invalid value")
	err := NewConfigError("field_name", "invalid_value", underlying)

	if !errors.Is(err, underlying) {
		t.Errorf("Expected error to unwrap to underlying error")
	}

	expectedMsg := `config error for field field_name (value invalid_value): invalid value`
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestMultiError(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	err3 := errors.New("error 3")

	multiErr := NewMultiError([]error{err1, err2, err3})

	if len(multiErr.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(multiErr.Errors))
	}

	errMsg := multiErr.Error()
	if len(errMsg) < 10 || errMsg[:10] != "3 errors: " {
		t.Errorf("Expected message to start with '3 errors: ', got %q", errMsg)
	}

	singleErr := NewMultiError([]error{err1})
	if singleErr.Error() != "error 1" {
		t.Errorf("Expected 'error 1', got %q", singleErr.Error())
	}

	emptyErr := NewMultiError([]error{})
	if emptyErr.Error() != "no errors" {
		t.Errorf("Expected 'no errors', got %q", emptyErr.Error())
	}
	if emptyErr.ErrOrNil() != nil {
		t.Errorf("Expected ErrOrNil to return nil for empty multi-error")
	}

	nilFiltered := NewMultiError([]error{err1, nil, err2, nil})
	if len(nilFiltered.Errors) != 2 {
		t.Errorf("Expected 2 errors after filtering nil, got %d", len(nilFiltered.Errors))
	}

	if !errors.Is(multiErr, err2) {
		t.Errorf("Expected errors.Is to see through multi-error")
	}
}

func TestTimestamp(t *testing.T) {
	err := NewCorruptStoreError("x.tmx", 1, 1, errors.New("test"))
	if err.Timestamp.IsZero() {
		t.Errorf("Expected non-zero timestamp")
	}

	now := time.Now()
	if err.Timestamp.After(now) || now.Sub(err.Timestamp) > time.Second {
		t.Errorf("Timestamp seems incorrect: %v", err.Timestamp)
	}
}
