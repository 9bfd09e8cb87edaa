package ir

// Transform is a pass that mutates a value of type T in place.
// On failure the target is left in an unspecified state; callers that need
// to fall back keep their own snapshot.
type Transform[T any] interface {
	// Name returns the name of the pass.
	Name() string
	// Description returns a one-line description of the pass.
	Description() string
	// Transform mutates target.
	Transform(target T) error
}

// Validator is implemented by entities that can check their own well-formedness.
// Validate must not modify the receiver.
type Validator interface {
	Validate() error
}

// ValidateAll validates vs in order and returns the first failure.
func ValidateAll(vs ...Validator) error {
	for _, v := range vs {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TranslatorInto is implemented by representations that can be converted into T.
// A target value is only produced on success.
type TranslatorInto[T any] interface {
	TryTranslateInto() (T, error)
}

// TryTranslateFrom produces a T from any source translatable into T.
// It is the inverse view of TryTranslateInto and adds no behavior of its own.
func TryTranslateFrom[T any, S TranslatorInto[T]](source S) (T, error) {
	return source.TryTranslateInto()
}
