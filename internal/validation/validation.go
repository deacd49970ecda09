// Package validation implements an ordered validator registry: a list of
// functions invoked during writes, each able to veto the write and set a
// diagnostic status/message on a per-call context it does not retain
// afterward.
//
// A small, composable check-function shape, applied here to
// per-revision parent/child checks rather than per-field ones.
package validation

import "github.com/revtree/ldb/internal/types"

// Context is owned by the caller for the duration of one validator call.
// Previous lazily loads the prior revision's body only if the validator
// actually asks for it, so pure-structural validators never pay a
// storage round-trip.
type Context struct {
	previous    *types.Revision
	loadPrev    func() (*types.Revision, error)
	previousErr error
	loaded      bool

	errorType int
	errorMsg  string
}

// NewContext builds a Context for one validator invocation. loadPrev may
// be nil when there is no parent (root insert).
func NewContext(loadPrev func() (*types.Revision, error)) *Context {
	return &Context{
		loadPrev:  loadPrev,
		errorType: 403,
		errorMsg:  "invalid document",
	}
}

// Previous returns the prior revision, body-loaded on first access. Nil,
// nil means this is a root insert with no parent to compare against.
func (c *Context) Previous() (*types.Revision, error) {
	if c.loaded {
		return c.previous, c.previousErr
	}
	c.loaded = true
	if c.loadPrev == nil {
		return nil, nil
	}
	c.previous, c.previousErr = c.loadPrev()
	return c.previous, c.previousErr
}

// SetError overrides the status/message reported when a validator rejects
// the write. Default is 403 / "invalid document".
func (c *Context) SetError(status int, message string) {
	c.errorType = status
	c.errorMsg = message
}

// Status and Message expose what a rejecting validator (or the default)
// recorded.
func (c *Context) Status() int     { return c.errorType }
func (c *Context) Message() string { return c.errorMsg }

// Validator is invoked with the candidate revision and a context exposing
// the previous revision. Returning false aborts the write with the
// context's status/message.
type Validator func(newRev *types.Revision, ctx *Context) bool

// Registry is an ordered list of validators. The zero value is a valid,
// empty registry: no validators installed means every write passes.
type Registry struct {
	validators []Validator
}

// NewRegistry builds a Registry from zero or more validators, run in the
// order given.
func NewRegistry(validators ...Validator) *Registry {
	return &Registry{validators: validators}
}

// Add appends a validator to the end of the chain.
func (r *Registry) Add(v Validator) {
	r.validators = append(r.validators, v)
}

// Len reports how many validators are installed.
func (r *Registry) Len() int { return len(r.validators) }

// Run invokes each validator in order against newRev, stopping at the
// first one that returns false. loadPrev is deferred until (if) a
// validator asks for it. Returns (200, "") when there are no validators
// or all of them approve.
func (r *Registry) Run(newRev *types.Revision, loadPrev func() (*types.Revision, error)) (status int, message string) {
	if len(r.validators) == 0 {
		return 200, ""
	}
	ctx := NewContext(loadPrev)
	for _, v := range r.validators {
		if !v(newRev, ctx) {
			return ctx.Status(), ctx.Message()
		}
	}
	return 200, ""
}
