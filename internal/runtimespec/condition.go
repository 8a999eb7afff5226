package runtimespec

import "encoding/json"

type conditionKind uint8

const (
	condTrue conditionKind = iota
	condFalse
	condSpec
)

// Condition is the runtime condition under which something holds: always,
// never, or only for a subset of runtimes.
//
// The zero value is True.
type Condition struct {
	kind conditionKind
	spec *Spec
}

var (
	True  = Condition{kind: condTrue}
	False = Condition{kind: condFalse}
)

// SpecCondition holds only for the runtimes in spec.
func SpecCondition(spec *Spec) Condition {
	return Condition{kind: condSpec, spec: spec.Clone()}
}

// IsTrue reports whether the condition always holds.
func (c Condition) IsTrue() bool { return c.kind == condTrue }

// IsFalse reports whether the condition never holds.
func (c Condition) IsFalse() bool { return c.kind == condFalse }

// Spec returns the runtime subset of a spec condition, or nil.
func (c Condition) Spec() *Spec {
	if c.kind != condSpec {
		return nil
	}
	return c.spec
}

// Holds evaluates the condition for a runtime. An unspecified runtime only
// excludes False.
func (c Condition) Holds(runtime *Spec) bool {
	switch c.kind {
	case condTrue:
		return true
	case condFalse:
		return false
	}
	if runtime == nil {
		return true
	}
	return c.spec.Intersects(runtime)
}

// Merge returns the union of two conditions.
func (c Condition) Merge(other Condition) Condition {
	switch {
	case c.kind == condTrue || other.kind == condTrue:
		return True
	case c.kind == condFalse:
		return other
	case other.kind == condFalse:
		return c
	}
	return SpecCondition(c.spec.Union(other.spec))
}

func (c Condition) String() string {
	switch c.kind {
	case condTrue:
		return "true"
	case condFalse:
		return "false"
	}
	return c.spec.String()
}

// MarshalJSON encodes True and False as booleans and spec conditions as a
// list of runtime names.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case condTrue:
		return []byte("true"), nil
	case condFalse:
		return []byte("false"), nil
	}
	return json.Marshal(c.spec.Names())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*c = True
		} else {
			*c = False
		}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*c = SpecCondition(New(names...))
	return nil
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON.
func (c *Condition) UnmarshalYAML(unmarshal func(any) error) error {
	var b bool
	if err := unmarshal(&b); err == nil {
		if b {
			*c = True
		} else {
			*c = False
		}
		return nil
	}
	var names []string
	if err := unmarshal(&names); err != nil {
		return err
	}
	*c = SpecCondition(New(names...))
	return nil
}

// Filter evaluates fn for every single runtime of runtime. It returns True
// when fn held for all of them, False when it held for none, and the subset
// where it held otherwise. A nil runtime evaluates fn(nil) once.
func Filter(runtime *Spec, fn func(*Spec) bool) Condition {
	if runtime == nil {
		if fn(nil) {
			return True
		}
		return False
	}
	some, every := false, true
	held := New()
	for _, r := range runtime.Single() {
		if fn(r) {
			some = true
			held.Extend(r)
		} else {
			every = false
		}
	}
	switch {
	case !some:
		return False
	case every:
		return True
	}
	return Condition{kind: condSpec, spec: held}
}
