// Package all registers every built-in CAN transport by side effect. Import
// it blank to make "socketcan" and "virtualcan" available to network.NewBus
// without naming each driver package individually.
package all

import (
	_ "github.com/samsamfire/opencanopen/pkg/can/socketcan"
	_ "github.com/samsamfire/opencanopen/pkg/can/virtual"
)
