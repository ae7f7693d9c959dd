package record

import (
	"fmt"
	"strconv"
)

// Value is a typed numeric field value: int64 for identifier-like columns,
// float64 for everything else. Floats render with six decimal places
// everywhere so preview text and executed parameters never disagree.
type Value struct {
	intVal  int64
	realVal float64
	isInt   bool
}

// IntValue creates an integer Value.
func IntValue(n int64) Value {
	return Value{intVal: n, isInt: true}
}

// RealValue creates a floating-point Value.
func RealValue(f float64) Value {
	return Value{realVal: f}
}

// IsInt reports whether the value carries an integer.
func (v Value) IsInt() bool {
	return v.isInt
}

// Int returns the integer payload. Only meaningful when IsInt is true.
func (v Value) Int() int64 {
	return v.intVal
}

// Float returns the value as a float64, widening integers.
func (v Value) Float() float64 {
	if v.isInt {
		return float64(v.intVal)
	}
	return v.realVal
}

// Arg returns the value as a driver argument for parameterized statements.
func (v Value) Arg() any {
	if v.isInt {
		return v.intVal
	}
	return v.realVal
}

// String renders the value for preview statements: integers bare, floats
// with fixed six-decimal precision.
func (v Value) String() string {
	if v.isInt {
		return strconv.FormatInt(v.intVal, 10)
	}
	return fmt.Sprintf("%.6f", v.realVal)
}
