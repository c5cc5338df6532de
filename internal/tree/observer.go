package tree

// ChangeKind names a structural or state change.
type ChangeKind int

const (
	Expand ChangeKind = iota
	Collapse
	// Refresh tells a child that its visibility changed although its own state did not.
	Refresh
	Select
	// PartialSelect is raised on the parent of a node whose selection changed in multi-select mode.
	PartialSelect
	Focus
	Insert
	Remove
	Update
	Reset
)

func (k ChangeKind) String() string {
	switch k {
	case Expand:
		return "expand"
	case Collapse:
		return "collapse"
	case Refresh:
		return "refresh"
	case Select:
		return "select"
	case PartialSelect:
		return "partial-select"
	case Focus:
		return "focus"
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// Change is delivered to observers.
type Change struct {
	Kind ChangeKind
	Node Node
}

// Observer is notified of changes, synchronously, in registration order.
type Observer interface {
	TreeChanged(c Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

// TreeChanged calls f.
func (f ObserverFunc) TreeChanged(c Change) {
	f(c)
}

// AddObserver registers o.
func (t *Tree) AddObserver(o Observer) {
	t.observers = append(t.observers, o)
}

// RemoveObserver unregisters o. Observers must be comparable for removal.
func (t *Tree) RemoveObserver(o Observer) {
	for i, x := range t.observers {
		if x == o {
			t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Tree) notify(c Change) {
	for _, o := range t.observers {
		o.TreeChanged(c)
	}
}
