package archive

// WalkFunc is called once per surviving entry, in sorted path order, by
// Walk. Returning a non-nil error stops the walk and that error is
// returned by Walk.
type WalkFunc func(e Entry) error

// Walk is the single public traversal operation for an archive (spec.md
// §4.1): it internally cleans A and yields only the surviving entries, in
// sorted path order. Memory use is O(N) in the number of surviving
// entries plus the INCLUDE recursion depth, since Clean's memo map
// amortizes repeated INCLUDEs of the same triad to a single expansion.
func Walk(a *Archive, resolve Resolver, fn WalkFunc) error {
	cleaned, err := Clean(a, resolve)
	if err != nil {
		return err
	}
	for _, e := range cleaned.Entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Collect is a convenience wrapper around Walk that materializes the
// surviving entries into a slice.
func Collect(a *Archive, resolve Resolver) ([]Entry, error) {
	var out []Entry
	err := Walk(a, resolve, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}
