package injector

import "go.uber.org/multierr"

// Result is the outcome of patching one target class.
type Result struct {
	Class string
	// Created lists auxiliary classes injected along with the target.
	Created []string
	Err     error
}

// Injected reports whether the class was replaced.
func (r Result) Injected() bool {
	return r.Err == nil
}

// Report summarizes one Initialize call.
type Report struct {
	Platform string
	// Rejected is set when a platform was already bound and nothing ran.
	Rejected bool
	Results  []Result
}

// Injected returns the names of the target classes that were replaced.
func (r *Report) Injected() []string {
	var names []string
	for _, res := range r.Results {
		if res.Injected() {
			names = append(names, res.Class)
		}
	}
	return names
}

// Failed returns the results of the classes that could not be patched.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Injected() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err combines every failure of the run, or returns
// ErrDuplicateInitialization for a rejected call.
func (r *Report) Err() error {
	if r.Rejected {
		return ErrDuplicateInitialization
	}
	var err error
	for _, res := range r.Results {
		err = multierr.Append(err, res.Err)
	}
	return err
}
