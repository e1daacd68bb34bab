// Package audiomoth implements the firmware update protocol for AudioMoth
// acoustic-monitoring devices (https://www.openacousticdevices.info).
//
// The device is a USB-attached microcontroller that exposes one of two
// wire protocols depending on the mode it is currently in: a serial
// XMODEM-CRC bootloader, or a USB-HID packet channel that stages a new
// image in on-board SRAM before committing it to flash. This package
// provides a transport-agnostic Dispatcher that probes the device's
// current mode, updates an obsolete bootloader if necessary, and drives
// whichever flashing protocol applies.
//
// The package deliberately knows nothing about presenting progress to a
// user, downloading firmware, or any GUI concern. Callers wire those in
// through the ProgressSink and Confirmer interfaces.
//
// Also included is a command line tool, found in the cmd/audiomoth-flash
// directory, that serves both as a usage example and as a fully functional
// host program for flashing firmware from the command line.
package audiomoth
