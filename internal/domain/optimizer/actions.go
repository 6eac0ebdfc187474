package optimizer

import "fmt"

// Action is one rewrite the optimizer performed.
type Action interface {
	LogString() string
}

// RemovedRule records a selector dropped because no template uses it.
type RemovedRule struct {
	Selector string
	Source   string
	Line     int
}

// LogString implements Action.
func (a RemovedRule) LogString() string {
	return fmt.Sprintf("%s:%d: removed unused selector %s", a.Source, a.Line, a.Selector)
}

// RewroteIdent records a class renamed to a shorter identifier.
type RewroteIdent struct {
	From string
	To   string
}

// LogString implements Action.
func (a RewroteIdent) LogString() string {
	return fmt.Sprintf("rewrote class .%s to .%s", a.From, a.To)
}

// Minified records the bytes saved by minification.
type Minified struct {
	Rules int
	Saved int
}

// LogString implements Action.
func (a Minified) LogString() string {
	return fmt.Sprintf("minified %d rules, saved %d bytes", a.Rules, a.Saved)
}
