package od

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
)

// An Entry object is the main building block of an [ObjectDictionary].
// it holds an OD entry, i.e. an OD object at a specific index.
// An entry can be one of the following object types, defined by CiA 301
//   - VAR [Variable]
//   - DOMAIN [Variable]
//   - ARRAY [VariableList]
//   - RECORD [VariableList]
//
// If the Object is an ARRAY or a RECORD it can hold also multiple sub entries.
// sub entries are always of type VAR, for simplicity.
type Entry struct {
	logger *slog.Logger
	// The OD index e.g. x1006
	Index uint16
	// The OD name for this entry
	Name string
	// The OD object type, as cited above.
	ObjectType uint8
	// Either a [Variable] or a [VariableList] object
	object    any
	extension *extension
}

// NewEntry creates a new [Entry].
func NewEntry(logger *slog.Logger, index uint16, name string, object any, objectType uint8) *Entry {
	return &Entry{
		logger:     logger.With("index", fmt.Sprintf("x%x", index), "name", name),
		Index:      index,
		Name:       name,
		object:     object,
		ObjectType: objectType,
	}
}

// SubIndex returns the [Variable] at a given subindex.
// subindex can be a string, int, uint8, or "" for a VAR type entry.
// When using a string it will try to find the subindex according to the OD naming.
func (entry *Entry) SubIndex(subIndex any) (v *Variable, e error) {
	if entry == nil {
		return nil, ErrIdxNotExist
	}
	switch object := entry.object.(type) {
	case *Variable:
		if subIndex != 0 && subIndex != uint8(0) && subIndex != "" {
			return nil, ErrSubNotExist
		}
		return object, nil
	case *VariableList:
		switch sub := subIndex.(type) {
		case string:
			return object.GetSubObjectByName(sub)
		case int:
			if sub >= 256 {
				return nil, ErrDevIncompat
			}
			return object.GetSubObject(uint8(sub))
		case uint8:
			return object.GetSubObject(sub)
		default:
			return nil, ErrDevIncompat
		}
	default:
		// This is not normal
		return nil, ErrDevIncompat
	}
}

// AddExtension adds an extension to an OD entry.
// This allows an OD entry to perform custom behaviour on read or on write.
// Some extensions are already defined in this package for defined CiA entries
// e.g. objects x1005, x1006, etc.
// Implementation of the default StreamReader & StreamWriter for a regular OD entry
// can be found here [ReadEntryDefault] & [WriteEntryDefault].
func (entry *Entry) AddExtension(object any, read StreamReader, write StreamWriter) {
	entry.logger.Debug("added extension",
		"read", getFunctionName(read),
		"write", getFunctionName(write),
	)
	entry.extension = &extension{object: object, read: read, write: write}
}

// SubCount returns the number of sub entries inside entry.
// If entry is of VAR type it will return 1
func (entry *Entry) SubCount() int {
	switch object := entry.object.(type) {
	case *Variable:
		return 1
	case *VariableList:
		return len(object.Variables)
	default:
		// This is not normal
		entry.logger.Error("invalid entry", "type", fmt.Sprintf("%T", entry))
		return 1
	}
}

func (entry *Entry) Extension() *extension {
	return entry.extension
}

func (entry *Entry) FlagPDOByte(subIndex byte) *uint8 {
	return &entry.extension.flagsPDO[subIndex>>3]
}

// Uint8 reads data inside of OD as if it were and UNSIGNED8.
// It returns an error if length is incorrect or read failed.
func (entry *Entry) Uint8(subIndex uint8) (uint8, error) {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return 0, err
	}
	return sub.Uint8()
}

// Uint16 reads data inside of OD as if it were and UNSIGNED16.
// It returns an error if length is incorrect or read failed.
func (entry *Entry) Uint16(subIndex uint8) (uint16, error) {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return 0, err
	}
	return sub.Uint16()
}

// Uint32 reads data inside of OD as if it were and UNSIGNED32.
// It returns an error if length is incorrect or read failed.
func (entry *Entry) Uint32(subIndex uint8) (uint32, error) {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return 0, err
	}
	return sub.Uint32()
}

// Uint64 reads data inside of OD as if it were and UNSIGNED64.
// It returns an error if length is incorrect or read failed.
func (entry *Entry) Uint64(subIndex uint8) (uint64, error) {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return 0, err
	}
	return sub.Uint64()
}

// PutUint8 writes an UNSIGNED8 to OD entry.
// origin can be set to true in order to bypass any existing extension.
func (entry *Entry) PutUint8(subIndex uint8, value uint8, origin bool) error {
	return entry.WriteExactly(subIndex, []byte{value}, origin)
}

// PutUint16 writes an UNSIGNED16 to OD entry.
// origin can be set to true in order to bypass any existing extension.
func (entry *Entry) PutUint16(subIndex uint8, data uint16, origin bool) error {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, data)
	return entry.WriteExactly(subIndex, b, origin)
}

// PutUint32 writes an UNSIGNED32 to OD entry.
// origin can be set to true in order to bypass any existing extension.
func (entry *Entry) PutUint32(subIndex uint8, data uint32, origin bool) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, data)
	return entry.WriteExactly(subIndex, b, origin)
}

// PutUint64 writes an UNSIGNED64 to OD entry.
// origin can be set to true in order to bypass any existing extension.
func (entry *Entry) PutUint64(subIndex uint8, data uint64, origin bool) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, data)
	return entry.WriteExactly(subIndex, b, origin)
}

// PutAnyExact writes value, encoded according to the target sub-object's
// exact data type, to OD entry. origin can be set to true to bypass any
// existing extension.
func (entry *Entry) PutAnyExact(subIndex any, value any, origin bool) error {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	buf := make([]byte, sub.DataLength())
	if err := EncodeFromTypeExactToBuffer(value, sub.DataType, buf); err != nil {
		return err
	}
	return entry.WriteExactly(sub.SubIndex, buf, origin)
}

// PutBytes writes value as the raw bytes of the target sub-object, only
// checking length. origin can be set to true to bypass any existing
// extension.
func (entry *Entry) PutBytes(subIndex any, value []byte, origin bool) error {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	return entry.WriteExactly(sub.SubIndex, value, origin)
}

// ReadExactly reads exactly len(b) bytes from OD at (index,subIndex).
// origin parameter controls extension usage if any
func (entry *Entry) ReadExactly(subIndex uint8, b []byte, origin bool) error {
	streamer, err := NewStreamer(entry, subIndex, origin)
	if err != nil {
		return err
	}
	if int(streamer.DataLength) != len(b) {
		return ErrTypeMismatch
	}
	_, err = streamer.Read(b)
	return err
}

// WriteExactly writes exactly len(b) bytes to OD at (index,subIndex).
// origin parameter controls extension usage if exists
func (entry *Entry) WriteExactly(subIndex uint8, b []byte, origin bool) error {
	streamer, err := NewStreamer(entry, subIndex, origin)
	if err != nil {
		return err
	}
	if int(streamer.DataLength) != len(b) {
		return ErrTypeMismatch
	}
	_, err = streamer.Write(b)
	return err
}

// GetRawData returns the raw bytes backing a sub-object, checking length
// if length is not zero. The returned slice aliases OD storage, so later
// writes through the OD stay visible to the caller.
func (entry *Entry) GetRawData(subIndex uint8, length int) ([]byte, error) {
	streamer, err := NewStreamer(entry, subIndex, true)
	if err != nil {
		return nil, err
	}
	if length != 0 && int(streamer.DataLength) != length {
		return nil, ErrTypeMismatch
	}
	return streamer.Data, nil
}

// SetLimits configures the inclusive min/max bounds (Go-syntax strings, ""
// meaning "no limit on this side") enforced on every subsequent write to
// subIndex, local or via SDO. Returns [ErrMaxLessMin] if both bounds are
// given and min > max.
func (entry *Entry) SetLimits(subIndex any, min, max string) error {
	sub, err := entry.SubIndex(subIndex)
	if err != nil {
		return err
	}
	return sub.SetLimits(min, max)
}

// Returns last part of function name
func getFunctionName(i interface{}) string {
	fullName := runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
	fullNameSplitted := strings.Split(fullName, ".")
	return fullNameSplitted[len(fullNameSplitted)-1]
}
