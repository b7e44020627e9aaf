package registry

// Observer receives list-model change notifications. Callbacks run
// synchronously on the registry's owner goroutine; they may read the
// registry but must not mutate it.
type Observer interface {
	RowsAboutToBeInserted(first, last int)
	RowsInserted(first, last int)
	RowsAboutToBeRemoved(first, last int)
	RowsRemoved(first, last int)
	DataChanged(index int, fields []Field)
}

// ObserverFuncs adapts optional callbacks to the Observer interface.
type ObserverFuncs struct {
	OnAboutToInsert func(first, last int)
	OnInserted      func(first, last int)
	OnAboutToRemove func(first, last int)
	OnRemoved       func(first, last int)
	OnDataChanged   func(index int, fields []Field)
}

var _ Observer = ObserverFuncs{}

func (f ObserverFuncs) RowsAboutToBeInserted(first, last int) {
	if f.OnAboutToInsert != nil {
		f.OnAboutToInsert(first, last)
	}
}

func (f ObserverFuncs) RowsInserted(first, last int) {
	if f.OnInserted != nil {
		f.OnInserted(first, last)
	}
}

func (f ObserverFuncs) RowsAboutToBeRemoved(first, last int) {
	if f.OnAboutToRemove != nil {
		f.OnAboutToRemove(first, last)
	}
}

func (f ObserverFuncs) RowsRemoved(first, last int) {
	if f.OnRemoved != nil {
		f.OnRemoved(first, last)
	}
}

func (f ObserverFuncs) DataChanged(index int, fields []Field) {
	if f.OnDataChanged != nil {
		f.OnDataChanged(index, fields)
	}
}
