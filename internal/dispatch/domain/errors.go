package dispatch

import "errors"

var (
	// ErrUnknownVerb is returned when a verb is outside the vocabulary.
	ErrUnknownVerb = errors.New("dispatch: unknown verb")
	// ErrUnknownSite is returned when a site is not in the catalog.
	ErrUnknownSite = errors.New("dispatch: unknown site")
	// ErrUnknownParameter is returned when a parameter name is not settable.
	ErrUnknownParameter = errors.New("dispatch: unknown parameter")
	// ErrDuplicateSite is returned when a site is selected twice.
	ErrDuplicateSite = errors.New("dispatch: duplicate site")
	// ErrDuplicateParameter is returned when a parameter is assigned twice.
	ErrDuplicateParameter = errors.New("dispatch: duplicate parameter")
	// ErrNegativeValue is returned when a parameter value is below zero.
	ErrNegativeValue = errors.New("dispatch: negative parameter value")
	// ErrSleepRange is returned when sleep seconds fall outside 1..3600.
	ErrSleepRange = errors.New("dispatch: sleep seconds out of range")
	// ErrUnknownTopic is returned when a notification topic is not recognised.
	ErrUnknownTopic = errors.New("dispatch: unknown topic")

	// ErrNoSites is the warning for an empty site selection.
	ErrNoSites = &Warning{Message: "select at least one finca"}
	// ErrNoParameters is the warning for a set command without assignments.
	ErrNoParameters = &Warning{Message: "enter at least one parameter value"}
)

// Warning is a user-facing rejection raised before any network call.
type Warning struct {
	Message string
}

func (w *Warning) Error() string {
	if w == nil {
		return ""
	}
	return w.Message
}

// IsWarning reports whether err carries a Warning.
func IsWarning(err error) bool {
	var warning *Warning
	return errors.As(err, &warning)
}
