package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	audiomoth "github.com/openacousticdevices/audiomoth-flash"
	log "github.com/sirupsen/logrus"
)

// cliConfirmer prompts on stdin/stdout for the destructive-write
// confirmation the dispatcher requests before overwriting a bootloader.
type cliConfirmer struct{}

func (cliConfirmer) Confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// cliProgressSink renders flash progress as log lines.
type cliProgressSink struct{}

func (cliProgressSink) Version(label string) {
	if label != "" {
		log.Infof("flashing version %s", label)
	}
}
func (cliProgressSink) Opening(attempt int)         { log.Infof("opening port (attempt %d)", attempt) }
func (cliProgressSink) CheckingBootloader()         { log.Infof("checking bootloader version") }
func (cliProgressSink) ReadyCheck(attempt int)      { log.Infof("ready handshake (attempt %d)", attempt) }
func (cliProgressSink) Flashing(total, current int) { log.Infof("flashing %d/%d", current, total) }
func (cliProgressSink) Restarting(timeout int)      { log.Infof("restarting device (timeout %dms)", timeout) }
func (cliProgressSink) Restart(progress int)        { log.Debugf("waiting for reset, %dms elapsed", progress) }
func (cliProgressSink) Completed()                  { log.Infof("done") }
func (cliProgressSink) Aborted(reason error)        { log.Errorf("aborted: %v", reason) }

func processVersion(port string, args []string) {
	sp, err := audiomoth.OpenSerialPort(port)
	if err != nil {
		log.Fatalf("failed to open port: %v", err)
	}
	defer sp.Close()

	id, err := audiomoth.ReadBootloaderIdentity(context.Background(), sp)
	if err != nil {
		log.Fatalf("failed to read bootloader identity: %v", err)
	}
	log.Infof("bootloader version %s, chip ID %s", id.Version, id.ChipID)
}

func processCRC(port string, args []string) {
	destructive := len(args) > 0 && args[0] == "destructive"

	sp, err := audiomoth.OpenSerialPort(port)
	if err != nil {
		log.Fatalf("failed to open port: %v", err)
	}
	defer sp.Close()

	crc, err := audiomoth.ReadImageCRC(context.Background(), sp, destructive)
	if err != nil {
		log.Fatalf("failed to read image CRC: %v", err)
	}
	log.Infof("image CRC: %s", crc)
}

func processReset(port string, args []string) {
	sp, err := audiomoth.OpenSerialPort(port)
	if err != nil {
		log.Fatalf("failed to open port: %v", err)
	}
	defer sp.Close()
	if err := sp.Write([]byte{'r'}); err != nil {
		log.Fatalf("failed to send reset: %v", err)
	}
	log.Infof("reset sent")
}
