package parser

import "fmt"

// PreviewLimit bounds how much of a provider reply may appear in an error
// message. Full payloads never reach logs or the editor.
const PreviewLimit = 200

// ParseError means the provider reply was not valid JSON once unwrapped
// from any code fence. It carries a bounded preview of the original text.
type ParseError struct {
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse AI response as JSON: %v (content: %s)", e.Err, e.Preview)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(original string, err error) *ParseError {
	return &ParseError{Preview: preview(original), Err: err}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLimit {
		return text
	}

	return string(runes[:PreviewLimit])
}

// SemanticError means the reply parsed as JSON but is missing required
// members or violates the node shape. Reported distinctly from ParseError.
type SemanticError struct {
	Message string
}

func (e *SemanticError) Error() string {
	return e.Message
}
