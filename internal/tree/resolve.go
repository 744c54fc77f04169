package tree

// Answer is a resolved key together with the file that answered it.
type Answer struct {
	Key    string
	Source string
	Value  Value
}

// Locate resolves key like Get and also reports which file answered.
func Locate(n Node, key string) (Answer, bool, error) {
	switch x := n.(type) {
	case *Directory:
		ord, mapped := x.env.Keys.Ordinal(key)
		if mapped && !x.coverage.Contains(ord) {
			return Answer{}, false, nil
		}
		for _, c := range x.children {
			if mapped && !c.Coverage().Contains(ord) {
				continue
			}
			a, ok, err := Locate(c, key)
			if err != nil || ok {
				return a, ok, err
			}
		}
		return Answer{}, false, nil
	default:
		r, err := n.Get(key)
		if err != nil || !r.Found {
			return Answer{}, false, err
		}
		return Answer{Key: key, Source: n.Path(), Value: r.Value}, true, nil
	}
}

// Failure is a key whose lookup raised an error, e.g. a transform that
// cannot apply to the stored data.
type Failure struct {
	Key string
	Err error
}

func (f Failure) Error() string { return f.Key + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// ResolveAll locates every key, in order. Keys nothing answers are skipped. A
// key whose lookup fails is reported in failures and the remaining keys are
// still resolved.
func ResolveAll(n Node, keys []string) ([]Answer, []Failure) {
	var out []Answer
	var failed []Failure
	for _, k := range keys {
		a, ok, err := Locate(n, k)
		if err != nil {
			failed = append(failed, Failure{Key: k, Err: err})
			continue
		}
		if ok {
			out = append(out, a)
		}
	}
	return out, failed
}
