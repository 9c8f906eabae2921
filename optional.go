package padgrid

type (
	// OptionalInt is an int that knows whether it has been set. The zero
	// value is empty.
	OptionalInt struct {
		value  int
		exists bool
	}

	// OptionalFloat is a float64 that knows whether it has been set. The
	// zero value is empty.
	OptionalFloat struct {
		value  float64
		exists bool
	}
)

func NewOptionalInt(value int) OptionalInt {
	return OptionalInt{value: value, exists: true}
}

func NewOptionalFloat(value float64) OptionalFloat {
	return OptionalFloat{value: value, exists: true}
}

func (i OptionalInt) Unpack() (int, bool) {
	return i.value, i.exists
}

func (i OptionalInt) Value() int {
	if !i.exists {
		panic("Access value of empty OptionalInt")
	}
	return i.value
}

func (i OptionalInt) Empty() bool {
	return !i.exists
}

func (i OptionalInt) Equals(value int) bool {
	return i.exists && i.value == value
}

func (f OptionalFloat) Unpack() (float64, bool) {
	return f.value, f.exists
}

func (f OptionalFloat) Value() float64 {
	if !f.exists {
		panic("Access value of empty OptionalFloat")
	}
	return f.value
}

func (f OptionalFloat) Empty() bool {
	return !f.exists
}

// Or returns the value if set, otherwise the fallback.
func (f OptionalFloat) Or(fallback float64) float64 {
	if f.exists {
		return f.value
	}
	return fallback
}
