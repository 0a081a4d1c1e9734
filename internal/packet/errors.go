package packet

import "errors"

// Decode failures. Every error returned by Decode wraps exactly one of these.
var (
	ErrMalformedFraming        = errors.New("malformed framing")
	ErrInvalidValue            = errors.New("invalid length-prefixed value")
	ErrUnexpectedValueKind     = errors.New("unexpected value kind")
	ErrHeaderNotTextual        = errors.New("header value is not textual")
	ErrInvalidEmbeddedJSON     = errors.New("invalid embedded JSON headers")
	ErrInconsistentUploadState = errors.New("upload done marker does not match upload start marker")
)

var kinds = []struct {
	err   error
	label string
}{
	{ErrMalformedFraming, "malformed_framing"},
	{ErrInvalidValue, "invalid_value"},
	{ErrUnexpectedValueKind, "unexpected_value_kind"},
	{ErrHeaderNotTextual, "header_not_textual"},
	{ErrInvalidEmbeddedJSON, "invalid_embedded_json"},
	{ErrInconsistentUploadState, "inconsistent_upload_state"},
}

// Kind returns a short label for the decode failure wrapped by err, suitable
// for metrics and logs. Errors that are not decode failures report "other".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "other"
}

// Kinds lists every label Kind can return for a decode failure, in a fixed
// order.
func Kinds() []string {
	labels := make([]string, 0, len(kinds))
	for _, k := range kinds {
		labels = append(labels, k.label)
	}
	return labels
}
