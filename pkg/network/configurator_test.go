package network

import (
	"testing"
	"time"

	"github.com/samsamfire/opencanopen/pkg/config"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/samsamfire/opencanopen/pkg/sdo"
	"github.com/stretchr/testify/assert"
)

func TestSyncConfigurator(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	conf := network.Configurator(NodeIdTest)

	// Test Sync update producer cob id & possible errors
	err := conf.ProducerEnableSYNC()
	assert.Nil(t, err)
	err = conf.WriteCanIdSYNC(0x81)
	assert.Nil(t, err)
	err = conf.ProducerDisableSYNC()
	assert.Nil(t, err)
	err = conf.WriteCanIdSYNC(0x81)
	assert.Nil(t, err)

	// Test Sync update counter overflow & possible errors
	err = conf.WriteCommunicationPeriod(100_100)
	assert.Nil(t, err)
	commPeriod, _ := conf.ReadCommunicationPeriod()
	assert.EqualValues(t, 100_100, commPeriod)
	err = conf.WriteCounterOverflow(100)
	assert.Equal(t, sdo.AbortDataDeviceState, err)
	err = conf.WriteCommunicationPeriod(0)
	assert.Nil(t, err)
	err = conf.WriteCounterOverflow(250)
	assert.Equal(t, sdo.AbortInvalidValue, err)
	err = conf.WriteCounterOverflow(10)
	assert.Nil(t, err)
	counterOverflow, err := conf.ReadCounterOverflow()
	assert.Nil(t, err, err)
	assert.EqualValues(t, 10, counterOverflow)
	err = conf.WriteWindowLengthPdos(110)
	assert.Nil(t, err)
	windowPdos, _ := conf.ReadWindowLengthPdos()
	assert.EqualValues(t, 110, windowPdos)
}

var receivedErrorCodes []uint16

func emCallback(ident uint16, errorCode uint16, errorRegister byte, errorBit byte, infoCode uint32) {
	receivedErrorCodes = append(receivedErrorCodes, errorCode)
}

func TestHBConfigurator(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	node, _ := network.Local(NodeIdTest)
	node.EMCY.SetCallback(emCallback)
	config := network.Configurator(NodeIdTest)
	err := config.WriteMonitoredNode(1, 0x25, 100)
	assert.Nil(t, err)
	// Test duplicate entry
	err = config.WriteMonitoredNode(3, 0x25, 100)
	assert.Equal(t, err, sdo.AbortParamIncompat)
	_, err = network.CreateLocalNode(0x25, od.Default())
	assert.Nil(t, err)
	max, _ := config.ReadMaxMonitorableNodes()
	// Test that we receive at least one emergency
	assert.EqualValues(t, 8, max)
	time.Sleep(2 * time.Second)
	assert.GreaterOrEqual(t, len(receivedErrorCodes), 1)
	monitoredNodes, err := config.ReadMonitoredNodes()
	assert.Nil(t, err)
	assert.Len(t, monitoredNodes, 8)
	// Test hearbeat update / read
	val, _ := config.ReadHeartbeatPeriod()
	assert.EqualValues(t, 1000, val)
	err = config.WriteHeartbeatPeriod(900)
	assert.Nil(t, err)
	val, _ = config.ReadHeartbeatPeriod()
	assert.EqualValues(t, val, 900)
}

func TestTimeConfigurator(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	conf := network.Configurator(NodeIdTest)
	node, _ := network.Local(NodeIdTest)
	err := conf.ProducerEnableTIME()
	assert.Nil(t, err)
	assert.Equal(t, true, node.TIME.Producer())
	err = conf.ProducerDisableTIME()
	assert.Nil(t, err)
	assert.Equal(t, false, node.TIME.Producer())
	err = conf.ProducerEnableTIME()
	assert.Nil(t, err)
	assert.Equal(t, true, node.TIME.Producer())
	err = conf.ConsumerDisableTIME()
	assert.Nil(t, err)
	assert.Equal(t, false, node.TIME.Consumer())
	err = conf.ConsumerEnableTIME()
	assert.Nil(t, err)
	assert.Equal(t, true, node.TIME.Consumer())
	err = conf.ConsumerDisableTIME()
	assert.Nil(t, err)
	assert.Equal(t, false, node.TIME.Consumer())
}

func TestGeneralObjects(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	conf := network.Configurator(NodeIdTest)
	name, err := conf.ReadManufacturerDeviceName()
	assert.Nil(t, err)
	assert.Equal(t, "DUT", name)
	name, err = conf.ReadManufacturerHardwareVersion()
	assert.Nil(t, err)
	assert.Equal(t, "v400", name)
	name, err = conf.ReadManufacturerSoftwareVersion()
	assert.Nil(t, err)
	assert.Equal(t, "v1.1.2r", name)
	identity, err := conf.ReadIdentity()
	assert.Nil(t, err)
	assert.EqualValues(t, 0, identity.VendorId)
	manufInfo := conf.ReadManufacturerInformation()
	assert.Equal(t, config.ManufacturerInformation{
		ManufacturerDeviceName:      "DUT",
		ManufacturerHardwareVersion: "v400",
		ManufacturerSoftwareVersion: "v1.1.2r",
	}, manufInfo)
}
