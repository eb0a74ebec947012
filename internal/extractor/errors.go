package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage indicates that no recognizer is registered for a language
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// UnsupportedLanguageError reports the language that could not be dispatched.
// It matches ErrUnsupportedLanguage with errors.Is.
type UnsupportedLanguageError struct {
	Language Language
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedLanguage, string(e.Language))
}

// Is lets errors.Is(err, ErrUnsupportedLanguage) succeed.
func (e *UnsupportedLanguageError) Is(target error) bool {
	return target == ErrUnsupportedLanguage
}
