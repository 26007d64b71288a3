package od

import "fmt"

// Default builds a minimal but complete CiA 301 object dictionary,
// programmatically, suitable for use by examples and tests without
// relying on an external EDS/DCF file. It includes the mandatory
// communication profile objects (device type, error register, SYNC,
// TIME, EMCY, heartbeat producer/consumer, SDO server/client
// parameters) plus a handful of manufacturer-specific test variables
// covering BOOLEAN, INTEGER8-64, UNSIGNED8-64, REAL32, REAL64 and
// VISIBLE_STRING.
func Default() *ObjectDictionary {
	odict := NewObjectDictionary(nil)

	odict.AddVariableType(EntryDeviceType, "Device type", UNSIGNED32, AttributeSdoR, "0x0")
	odict.AddVariableType(EntryErrorRegister, "Error register", UNSIGNED8, AttributeSdoR, "0x0")

	errorField := NewArray(9)
	errorField.AddSubObject(0, "Number of errors", UNSIGNED8, AttributeSdoR, "0x0")
	for i := uint8(1); i <= 8; i++ {
		errorField.AddSubObject(i, "Standard error field", UNSIGNED32, AttributeSdoR, "0x0")
	}
	odict.AddVariableList(EntryManufacturerStatusRegister, "Pre-defined error field", errorField)

	odict.AddSYNC()

	odict.AddVariableType(EntryManufacturerDeviceName, "Manufacturer device name", VISIBLE_STRING, AttributeSdoR, "DUT")
	odict.AddVariableType(EntryManufacturerHardwareVersion, "Manufacturer hardware version", VISIBLE_STRING, AttributeSdoR, "v400")
	odict.AddVariableType(EntryManufacturerSoftwareVersion, "Manufacturer software version", VISIBLE_STRING, AttributeSdoR, "v1.1.2r")

	odict.AddVariableType(EntryCobIdTIME, "COB-ID TIME", UNSIGNED32, AttributeSdoRw, "0x100")
	odict.AddVariableType(EntryCobIdEMCY, "COB-ID EMCY", UNSIGNED32, AttributeSdoRw, "0x80")
	odict.AddVariableType(EntryInhibitTimeEMCY, "Inhibit time EMCY", UNSIGNED16, AttributeSdoRw, "0x0")

	consumerHb := NewRecord()
	consumerHb.AddSubObject(0, "Highest sub-index supported", UNSIGNED8, AttributeSdoR, "0x8")
	for i := uint8(1); i <= 8; i++ {
		consumerHb.AddSubObject(i, fmt.Sprintf("Consumer heartbeat time %d", i), UNSIGNED32, AttributeSdoRw, "0x0")
	}
	odict.AddVariableList(EntryConsumerHeartbeatTime, "Consumer heartbeat time", consumerHb)

	odict.AddVariableType(EntryProducerHeartbeatTime, "Producer heartbeat time", UNSIGNED16, AttributeSdoRw, "0x3E8")

	identity := NewRecord()
	identity.AddSubObject(0, "Highest sub-index supported", UNSIGNED8, AttributeSdoR, "0x4")
	identity.AddSubObject(1, "Vendor ID", UNSIGNED32, AttributeSdoR, "0x0")
	identity.AddSubObject(2, "Product code", UNSIGNED32, AttributeSdoR, "0x0")
	identity.AddSubObject(3, "Revision number", UNSIGNED32, AttributeSdoR, "0x0")
	identity.AddSubObject(4, "Serial number", UNSIGNED32, AttributeSdoR, "0x0")
	odict.AddVariableList(EntryIdentityObject, "Identity object", identity)

	sdoServer := NewRecord()
	sdoServer.AddSubObject(0, "Highest sub-index supported", UNSIGNED8, AttributeSdoR, "0x2")
	sdoServer.AddSubObject(1, "COB-ID client to server", UNSIGNED32, AttributeSdoR, "0x0")
	sdoServer.AddSubObject(2, "COB-ID server to client", UNSIGNED32, AttributeSdoR, "0x0")
	odict.AddVariableList(EntrySDOServerParameter, "SDO server parameter", sdoServer)

	sdoClient := NewRecord()
	sdoClient.AddSubObject(0, "Highest sub-index supported", UNSIGNED8, AttributeSdoR, "0x3")
	sdoClient.AddSubObject(1, "COB-ID client to server", UNSIGNED32, AttributeSdoRw, "0x0")
	sdoClient.AddSubObject(2, "COB-ID server to client", UNSIGNED32, AttributeSdoRw, "0x0")
	sdoClient.AddSubObject(3, "Node-ID of the SDO server", UNSIGNED8, AttributeSdoRw, "0x0")
	odict.AddVariableList(EntrySDOClientParameter, "SDO client parameter", sdoClient)

	// Manufacturer-specific test variables, one per basic data type.
	odict.AddVariableType(0x2000, "BOOLEAN value", BOOLEAN, AttributeSdoRw, "1")
	odict.AddVariableType(0x2001, "INTEGER8 value", INTEGER8, AttributeSdoRw, "0x33")
	entryU8, _ := odict.AddVariableType(0x2002, "UNSIGNED8 value", UNSIGNED8, AttributeSdoRw, "0x10")
	entryU8.SetLimits(0, "0x00", "0xF0")
	odict.AddVariableType(0x2003, "INTEGER16 value", INTEGER16, AttributeSdoRw, "0x4444")
	odict.AddVariableType(0x2004, "UNSIGNED16 value", UNSIGNED16, AttributeSdoRw, "0x1111")
	odict.AddVariableType(0x2005, "INTEGER32 value", INTEGER32, AttributeSdoRw, "0x55555555")
	odict.AddVariableType(0x2006, "INTEGER64 value", INTEGER64, AttributeSdoRw, "0x55555555")
	odict.AddVariableType(0x2007, "UNSIGNED32 value", UNSIGNED32, AttributeSdoRw, "0x22222222")
	odict.AddVariableType(0x2008, "REAL32 value", REAL32, AttributeSdoRw, "0.1")
	odict.AddVariableType(0x2009, "REAL64 value", REAL64, AttributeSdoRw, "0.55")
	odict.AddVariableType(0x200A, "VISIBLE STRING value", VISIBLE_STRING, AttributeSdoRw|AttributeStr,
		"AStringCannotBeLongerThanTheDefaultValue")
	odict.AddVariableType(0x201B, "UNSIGNED64 value", UNSIGNED64, AttributeSdoRw, "0x55555555")

	return odict
}
