package od

import (
	"fmt"
	"log/slog"
)

var _logger = slog.Default()

// ObjectDictionary is used for storing all entries of a CANopen node
// according to CiA 301. Entries are constructed programmatically through
// the Add* methods rather than parsed from an EDS/DCF file.
type ObjectDictionary struct {
	logger              *slog.Logger
	entriesByIndexValue map[uint16]*Entry
	entriesByIndexName  map[string]*Entry
}

// NewObjectDictionary creates an empty object dictionary.
func NewObjectDictionary(logger *slog.Logger) *ObjectDictionary {
	if logger == nil {
		logger = _logger
	}
	return &ObjectDictionary{
		logger:              logger,
		entriesByIndexValue: map[uint16]*Entry{},
		entriesByIndexName:  map[string]*Entry{},
	}
}

// Add an entry to OD, any existing entry will be replaced
func (od *ObjectDictionary) addEntry(entry *Entry) {
	_, entryIndexValueExists := od.entriesByIndexValue[entry.Index]
	if entryIndexValueExists {
		entry.logger.Warn("overwritting entry")
	}
	od.entriesByIndexValue[entry.Index] = entry
	od.entriesByIndexName[entry.Name] = entry
	entry.logger.Debug("adding entry", "objectType", OBJ_NAME_MAP[entry.ObjectType])
}

// Add a variable type entry to OD with given variable, existing entry will be
func (od *ObjectDictionary) addVariable(index uint16, variable *Variable) *Entry {
	entry := NewEntry(od.logger, index, variable.Name, variable, ObjectTypeVAR)
	od.addEntry(entry)
	return entry
}

// AddVariableType adds an entry of type VAR to OD
// the value should be given as a string with hex representation
// e.g. 0x22 or 0x55555
// If the variable already exists, it will be overwritten
func (od *ObjectDictionary) AddVariableType(
	index uint16,
	name string,
	datatype uint8,
	attribute uint8,
	value string,
) (*Entry, error) {
	variable, err := NewVariable(0, name, datatype, attribute, value)
	if err != nil {
		return nil, err
	}
	entry := od.addVariable(index, variable)
	return entry, nil
}

// RemoveObject detaches the entry at index, dropping its value along with
// it. Returns [ErrIdxNotExist] if no such entry is attached.
func (od *ObjectDictionary) RemoveObject(index uint16) error {
	entry, ok := od.entriesByIndexValue[index]
	if !ok {
		return ErrIdxNotExist
	}
	delete(od.entriesByIndexValue, index)
	delete(od.entriesByIndexName, entry.Name)
	return nil
}

// RemoveSubObject detaches the sub-object at (index, subIndex), rebuilding
// the owning object's value region so every surviving sub-object keeps its
// current value. Returns [ErrIdxNotExist]/[ErrSubNotExist] if either does
// not exist, or [ErrDevIncompat] if index addresses a plain VAR object
// (which has no sub-objects to remove).
func (od *ObjectDictionary) RemoveSubObject(index uint16, subIndex uint8) error {
	entry, ok := od.entriesByIndexValue[index]
	if !ok {
		return ErrIdxNotExist
	}
	varList, ok := entry.object.(*VariableList)
	if !ok {
		return ErrDevIncompat
	}
	return varList.RemoveSubObject(subIndex)
}

// AddVariableList adds an entry of type ARRAY or RECORD depending on [VariableList]
func (od *ObjectDictionary) AddVariableList(index uint16, name string, varList *VariableList) *Entry {
	entry := NewEntry(od.logger, index, name, varList, varList.objectType)
	od.addEntry(entry)
	return entry
}

// AddDomain adds a DOMAIN object to OD with a custom extension controlling
// how reads/writes to it are handled, e.g. for streaming firmware blocks or
// large configuration blobs through SDO.
func (od *ObjectDictionary) AddDomain(index uint16, indexName string, object any, reader StreamReader, writer StreamWriter) *Entry {
	entry, _ := od.AddVariableType(index, indexName, DOMAIN, AttributeSdoRw, "") // Cannot error
	entry.AddExtension(object, reader, writer)
	return entry
}

func (od *ObjectDictionary) addPDO(pdoNb uint16, isRPDO bool) error {
	// TODO check that no empty spaces in PDO numbering before the given number
	indexOffset := pdoNb - 1
	pdoType := "RPDO"
	if !isRPDO {
		indexOffset += 0x400
		pdoType = "TPDO"
	}

	pdoComm := NewRecord()
	pdoComm.AddSubObject(0, "Highest sub-index supported", UNSIGNED8, AttributeSdoR, "0x5")
	pdoComm.AddSubObject(1, fmt.Sprintf("COB-ID used by %s", pdoType), UNSIGNED32, AttributeSdoRw, "0x0")
	pdoComm.AddSubObject(2, "Transmission type", UNSIGNED8, AttributeSdoRw, "0x0")
	pdoComm.AddSubObject(3, "Inhibit time", UNSIGNED16, AttributeSdoRw, "0x0")
	pdoComm.AddSubObject(4, "Reserved", UNSIGNED8, AttributeSdoRw, "0x0")
	pdoComm.AddSubObject(5, "Event timer", UNSIGNED16, AttributeSdoRw, "0x0")

	od.AddVariableList(EntryRPDOCommunicationStart+indexOffset, fmt.Sprintf("%s communication parameter", pdoType), pdoComm)

	pdoMap := NewRecord()
	pdoMap.AddSubObject(0, "Number of mapped application objects in PDO", UNSIGNED8, AttributeSdoRw, "0x0")
	for i := uint8(1); i <= MaxMappedEntriesPdo; i++ {
		pdoMap.AddSubObject(i, fmt.Sprintf("Application object %d", i), UNSIGNED32, AttributeSdoRw, "0x0")
	}
	od.AddVariableList(EntryRPDOMappingStart+indexOffset, fmt.Sprintf("%s mapping parameter", pdoType), pdoMap)
	od.logger.Info("added new PDO oject to OD", "type", pdoType, "nb", pdoNb)
	return nil
}

// AddRPDO adds an RPDO entry to the OD.
// This means that an RPDO Communication & Mapping parameter
// entries are created with the given rpdoNb.
// This however does not create the corresponding CANopen objects
func (od *ObjectDictionary) AddRPDO(rpdoNb uint16) error {
	if rpdoNb < 1 || rpdoNb > 512 {
		return ErrDevIncompat
	}
	return od.addPDO(rpdoNb, true)
}

// AddTPDO adds a TPDO entry to the OD.
// This means that a TPDO Communication & Mapping parameter
// entries are created with the given tpdoNb.
// This however does not create the corresponding CANopen objects
func (od *ObjectDictionary) AddTPDO(tpdoNb uint16) error {
	if tpdoNb < 1 || tpdoNb > 512 {
		return ErrDevIncompat
	}
	return od.addPDO(tpdoNb, false)
}

// AddSYNC adds a SYNC entry to the OD.
// This adds objects 0x1005, 0x1006, 0x1007 & 0x1019 to the OD.
// By default, SYNC is added with producer disabled and can id of 0x80
func (od *ObjectDictionary) AddSYNC() {
	od.AddVariableType(0x1005, "COB-ID SYNC message", UNSIGNED32, AttributeSdoRw, "0x80000080") // Disabled with standard cob-id
	od.AddVariableType(0x1006, "Communication cycle period", UNSIGNED32, AttributeSdoRw, "0x0")
	od.AddVariableType(0x1007, "Synchronous window length", UNSIGNED32, AttributeSdoRw, "0x0")
	od.AddVariableType(0x1019, "Synchronous counter overflow value", UNSIGNED8, AttributeSdoRw, "0x0")
	od.logger.Info("added new SYNC object to OD")
}

// Index returns an OD entry at the specified index.
// index can either be a string, int or uint16.
// This method does not return an error (for chaining with Subindex()) but instead returns
// nil if no corresponding [Entry] is found.
func (od *ObjectDictionary) Index(index any) *Entry {
	switch ind := index.(type) {
	case string:
		return od.entriesByIndexName[ind]
	case int:
		return od.entriesByIndexValue[uint16(ind)]
	case uint:
		return od.entriesByIndexValue[uint16(ind)]
	case uint16:
		return od.entriesByIndexValue[ind]
	default:
		return nil
	}
}

// Creates new OD object streamer at the specified index and subindex
func (od *ObjectDictionary) Streamer(index uint16, subindex uint8, origin bool) (*Streamer, error) {
	entry := od.Index(index)
	return NewStreamer(entry, subindex, origin)
}

// Entries returns map of indexes and entries
func (od *ObjectDictionary) Entries() map[uint16]*Entry {
	return od.entriesByIndexValue
}
