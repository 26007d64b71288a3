// Command canopen_server runs a single CiA 301 CANopen node on a CAN bus,
// using the library's default object dictionary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samsamfire/opencanopen/pkg/network"
	"github.com/samsamfire/opencanopen/pkg/od"
)

func main() {
	canInterface := flag.String("i", "socketcan", "CAN interface type, e.g. socketcan, virtualcan")
	channel := flag.String("c", "can0", "CAN channel name, e.g. can0, vcan0, localhost:18888")
	bitrate := flag.Int("b", 500_000, "CAN bus bitrate")
	nodeId := flag.Int("n", 0x20, "node id")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	bus, err := network.NewBus(*canInterface, *channel, *bitrate)
	if err != nil {
		logger.Error("failed to create CAN bus", "interface", *canInterface, "channel", *channel, "error", err)
		os.Exit(1)
	}

	net := network.NewNetwork(bus)
	net.SetLogger(logger)
	if err := net.Connect(); err != nil {
		logger.Error("failed to connect to CAN bus", "error", err)
		os.Exit(1)
	}
	defer net.Disconnect()

	node, err := net.CreateLocalNode(uint8(*nodeId), od.Default())
	if err != nil {
		logger.Error("failed to create local node", "nodeId", *nodeId, "error", err)
		os.Exit(1)
	}
	logger.Info("node running", "nodeId", node.GetID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	fmt.Println("shutting down")
}
