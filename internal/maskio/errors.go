package maskio

import "fmt"

// FormatError reports a configuration document that cannot be understood:
// a wrong root element, a missing required element or attribute, or an
// attribute value of the wrong type.
type FormatError struct {
	Element   string
	Attribute string
	Reason    string
}

func (e *FormatError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("%s@%s: %s", e.Element, e.Attribute, e.Reason)
	}
	if e.Element != "" {
		return fmt.Sprintf("%s: %s", e.Element, e.Reason)
	}
	return e.Reason
}
