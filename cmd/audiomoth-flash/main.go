package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	audiomoth "github.com/openacousticdevices/audiomoth-flash"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const appVersion = "1.0.0"

// commands are the low-level single-shot operations that talk directly to
// a device already sitting in the serial bootloader, bypassing the
// dispatcher's mode-discovery and flasher selection entirely.
var commands = map[string]func(port string, args []string){
	"ver":   processVersion,
	"crc":   processCRC,
	"reset": processReset,
}

func main() {
	version := flag.Bool("version", false, "Prints the program version.")
	port := flag.String("port", "", "Serial port name (required with -cmd; flashing discovers the port automatically).")
	image := flag.String("image", "", "Firmware image to write (raw binary, or Intel HEX with -hex).")
	hexInput := flag.Bool("hex", false, "Treat -image as an Intel HEX file rather than raw binary.")
	destructive := flag.Bool("destructive", false, "Write the bootloader region as well as firmware.")
	clearUserData := flag.Bool("clear-user-data", false, "Erase the device's persistent user-data region as part of the flash.")
	preferUSBHID := flag.Bool("prefer-usbhid", false, "Prefer the USB-HID SRAM path over serial XMODEM when the device supports it.")
	expectedCRC := flag.String("expected-crc", "", "Four hex digit CRC the flashed image is expected to report.")
	firmwareVersion := flag.String("firmware-version", "", "Firmware version label to include in progress output.")
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	before := flag.String("before", "", "Command to run before flashing.")
	after := flag.String("after", "", "Command to run after flashing has completed successfully.")

	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.Encode(audiomoth.DeviceProfile{})
	profilePath := flag.String("profile", "", "Device profile yaml file, overriding built-in USB IDs and size limits. Example:\n\n"+buf.String())

	cmdList := []string{}
	for key := range commands {
		cmdList = append(cmdList, key)
	}
	command := flag.String("cmd", "", fmt.Sprintf("Low-level command to run against a device already in the serial bootloader, one of: %+v", cmdList))

	flag.Parse()

	if *version {
		fmt.Println(appVersion)
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	audiomoth.SetLogger(log.StandardLogger())

	if *command != "" {
		f, ok := commands[*command]
		if !ok {
			log.Fatalf("invalid command %v", *command)
		}
		if *port == "" {
			log.Fatal("must specify -port")
		}
		f(*port, flag.Args())
		return
	}

	if *image == "" {
		log.Fatal("must specify -image (or -cmd for a low-level operation)")
	}

	var profile audiomoth.DeviceProfile
	if *profilePath != "" {
		p, err := audiomoth.LoadDeviceProfile(*profilePath)
		if err != nil {
			log.Fatalf("failed to load profile: %v", err)
		}
		profile = p
	}

	imageBytes, err := loadImage(*image, *hexInput)
	if err != nil {
		log.Fatalf("failed to load image: %v", err)
	}

	if *before != "" {
		log.Infof("running before command...")
		if err := exec.Command(*before).Run(); err != nil {
			log.Fatalf("failed to run before command: %v", err)
		}
	}

	dispatcher := audiomoth.NewDispatcherWithProfile(cliConfirmer{}, cliProgressSink{}, profile)

	result, err := dispatcher.Flash(context.Background(), audiomoth.Options{
		Image:         imageBytes,
		Filename:      filepath.Base(*image),
		Destructive:   *destructive,
		ClearUserData: *clearUserData,
		PreferUSBHID:  *preferUSBHID,
		ExpectedCRC:   *expectedCRC,
		Version:       *firmwareVersion,
	})
	if err != nil {
		log.Fatalf("flash failed: %v", err)
	}
	log.Infof("flash complete, device reported CRC %s", result.ReceivedCRC)

	if *after != "" {
		log.Infof("running after command...")
		if err := exec.Command(*after).Run(); err != nil {
			log.Fatalf("failed to run after command: %v", err)
		}
	}
}

func loadImage(path string, isHex bool) ([]byte, error) {
	if isHex {
		return audiomoth.LoadHexFile(path)
	}
	return os.ReadFile(path)
}
