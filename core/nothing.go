package core

// nothingType is the unexported type backing the Nothing sentinel. Comparison
// is by value; the type has exactly one meaningful instance.
type nothingType struct{}

// Nothing is the distinguished "absent" value. It marks a context attribute
// that was never set, distinct from a legitimate zero value and from nil
// ("explicitly empty"). Attribute reads on an Attrs store never fail; they
// return Nothing instead, so conditional logic such as "if a loss function is
// configured, compute the loss" needs no error handling.
var Nothing = nothingType{}

// String implements fmt.Stringer.
func (nothingType) String() string { return "NOTHING" }

// IsNothing reports whether v is the Nothing sentinel.
func IsNothing(v any) bool {
	_, ok := v.(nothingType)
	return ok
}

// NoneOrNothing reports whether v is nil or the Nothing sentinel. Both count
// as "no usable value" for optional collaborators.
func NoneOrNothing(v any) bool {
	return v == nil || IsNothing(v)
}

// AsInt coerces v to an int. Nothing, nil and non numeric values coerce to
// the fallback, keeping absent context fields neutral in arithmetic.
func AsInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// AsFloat coerces v to a float64, returning the fallback for absent or non
// numeric values.
func AsFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

// AsBool coerces v to a bool. Nothing and nil are falsy.
func AsBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
