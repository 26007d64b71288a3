package od

import (
	"strings"
	"sync"
)

// Variable is the main data representation for a value stored inside of OD.
// It is used to store a "VAR" or "DOMAIN" object type as well as any sub
// entry of a "RECORD" or "ARRAY" object type.
type Variable struct {
	mu           sync.RWMutex
	valueDefault []byte
	value        []byte
	// Name of this variable
	Name string
	// The CiA 301 data type of this variable
	DataType byte
	// Attribute contains the access type as well as the mapping
	// information. e.g. AttributeSdoRw | AttributeRpdo
	Attribute uint8
	// StorageLocation has information on which medium is the data
	// stored. Currently this is unused, everything is stored in RAM
	StorageLocation string
	// The minimum value for this variable
	lowLimit []byte
	// The maximum value for this variable
	highLimit []byte
	// The subindex for this variable if part of an ARRAY or RECORD
	SubIndex uint8
}

// NewVariable creates a new standalone Variable with the value parsed from
// a Go-syntax string ("0x22", "-4", ...).
func NewVariable(
	subindex uint8,
	name string,
	datatype uint8,
	attribute uint8,
	value string,
) (*Variable, error) {
	encoded, err := EncodeFromString(value, datatype, 0)
	if err != nil {
		return nil, err
	}
	encodedCopy := make([]byte, len(encoded))
	copy(encodedCopy, encoded)
	variable := &Variable{
		SubIndex:     subindex,
		Name:         name,
		value:        encoded,
		valueDefault: encodedCopy,
		Attribute:    attribute,
		DataType:     datatype,
	}
	return variable, nil
}

// SetLimits assigns the inclusive minimum/maximum bounds for this variable,
// parsed the same way as its default value (Go-syntax string, "" meaning
// "no limit on this side"). Returns [ErrMaxLessMin] if both are given and
// min > max, so a misconfigured object never reaches the download path
// (§3 "Min ≤ Max for every basic sub-object whose limits are set").
func (variable *Variable) SetLimits(min, max string) error {
	var lowLimit, highLimit []byte
	var err error
	if min != "" {
		lowLimit, err = EncodeFromString(min, variable.DataType, 0)
		if err != nil {
			return err
		}
	}
	if max != "" {
		highLimit, err = EncodeFromString(max, variable.DataType, 0)
		if err != nil {
			return err
		}
	}
	if lowLimit != nil && highLimit != nil {
		cmp, err := CompareBasic(lowLimit, highLimit, variable.DataType)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return ErrMaxLessMin
		}
	}
	variable.mu.Lock()
	defer variable.mu.Unlock()
	variable.lowLimit = lowLimit
	variable.highLimit = highLimit
	return nil
}

// CheckValue validates value (wire-encoded, matching variable.DataType)
// against the configured min/max bounds, returning [ErrValueLow] or
// [ErrValueHigh] on violation. A variable with no limits configured always
// passes. This is the *check val* entry point from §4.2.
func (variable *Variable) CheckValue(value []byte) error {
	variable.mu.RLock()
	lowLimit, highLimit := variable.lowLimit, variable.highLimit
	variable.mu.RUnlock()
	if lowLimit != nil {
		cmp, err := CompareBasic(value, lowLimit, variable.DataType)
		if err != nil {
			return err
		}
		if cmp < 0 {
			return ErrValueLow
		}
	}
	if highLimit != nil {
		cmp, err := CompareBasic(value, highLimit, variable.DataType)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return ErrValueHigh
		}
	}
	return nil
}

// DataLength returns the current number of bytes backing this variable.
func (variable *Variable) DataLength() uint32 {
	return uint32(len(variable.value))
}

// DefaultValue returns the value this variable was created with.
func (variable *Variable) DefaultValue() []byte {
	return variable.valueDefault
}

// Raw returns a copy of the variable's current raw bytes.
func (variable *Variable) Raw() []byte {
	variable.mu.RLock()
	defer variable.mu.RUnlock()
	out := make([]byte, len(variable.value))
	copy(out, variable.value)
	return out
}

func (variable *Variable) read() (any, error) {
	variable.mu.RLock()
	defer variable.mu.RUnlock()
	return DecodeToTypeExact(variable.value, variable.DataType)
}

// Any reads the variable and widens it to one of the OD "base" types :
// uint64, int64, float64, string, time.Time.
func (variable *Variable) Any() (any, error) {
	variable.mu.RLock()
	defer variable.mu.RUnlock()
	return DecodeToType(variable.value, variable.DataType)
}

// AnyExact reads the variable and returns its narrowest matching Go type,
// e.g. bool, uint8, int16, float32, string, time.Time.
func (variable *Variable) AnyExact() (any, error) {
	return variable.read()
}

// Bytes returns a copy of the variable's current raw bytes.
func (variable *Variable) Bytes() []byte {
	return variable.Raw()
}

// Bool reads the variable as a BOOLEAN.
func (variable *Variable) Bool() (bool, error) {
	if variable.DataType != BOOLEAN {
		return false, ErrTypeMismatch
	}
	v, err := variable.Any()
	if err != nil {
		return false, err
	}
	val, ok := v.(uint64)
	if !ok {
		return false, ErrTypeMismatch
	}
	return val != 0, nil
}

// Uint reads the variable as any unsigned integer type, widened to uint64.
func (variable *Variable) Uint() (uint64, error) {
	v, err := variable.Any()
	if err != nil {
		return 0, err
	}
	val, ok := v.(uint64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Int reads the variable as any signed integer type, widened to int64.
func (variable *Variable) Int() (int64, error) {
	v, err := variable.Any()
	if err != nil {
		return 0, err
	}
	val, ok := v.(int64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Float reads the variable as REAL32 or REAL64, widened to float64.
func (variable *Variable) Float() (float64, error) {
	v, err := variable.Any()
	if err != nil {
		return 0, err
	}
	val, ok := v.(float64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Uint8 reads the variable as an UNSIGNED8, erroring if the underlying type
// or length does not match.
func (variable *Variable) Uint8() (uint8, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(uint8)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Uint16 reads the variable as an UNSIGNED16.
func (variable *Variable) Uint16() (uint16, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(uint16)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Uint32 reads the variable as an UNSIGNED32.
func (variable *Variable) Uint32() (uint32, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(uint32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Uint64 reads the variable as an UNSIGNED64.
func (variable *Variable) Uint64() (uint64, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(uint64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Int8 reads the variable as an INTEGER8.
func (variable *Variable) Int8() (int8, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(int8)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Int16 reads the variable as an INTEGER16.
func (variable *Variable) Int16() (int16, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(int16)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Int32 reads the variable as an INTEGER32.
func (variable *Variable) Int32() (int32, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(int32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Int64 reads the variable as an INTEGER64.
func (variable *Variable) Int64() (int64, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(int64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Float32 reads the variable as a REAL32.
func (variable *Variable) Float32() (float32, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(float32)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// Float64 reads the variable as a REAL64.
func (variable *Variable) Float64() (float64, error) {
	v, err := variable.read()
	if err != nil {
		return 0, err
	}
	val, ok := v.(float64)
	if !ok {
		return 0, ErrTypeMismatch
	}
	return val, nil
}

// String reads the variable as a VISIBLE_STRING/OCTET_STRING/UNICODE_STRING.
// Trailing null bytes left by a shorter write are not part of the value.
func (variable *Variable) String() (string, error) {
	v, err := variable.read()
	if err != nil {
		return "", err
	}
	val, ok := v.(string)
	if !ok {
		return "", ErrTypeMismatch
	}
	return strings.TrimRight(val, "\x00"), nil
}
