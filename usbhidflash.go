package audiomoth

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// HID command byte values used by the SRAM streaming flow, distinct from
// the running-firmware query commands in transport_hid.go.
const (
	hidRespInitSRAM      = 0x02
	hidRespClearUserData = 0x03
	hidRespSetSRAM       = 0x04
	hidRespCalcSRAMCRC   = 0x05
	hidRespCalcFlashCRC  = 0x06
	hidRespGetFWCRC      = 0x07
	hidRespFlashFW       = 0x08
)

const (
	sramPacketPayload  = 56
	batchSizeWindows   = 30
	batchSizeOther     = 60
	interBatchSleep    = 10 * time.Millisecond
	fwCRCPollAttempts  = 10
	fwCRCPollInterval  = 500 * time.Millisecond
	hidRebootWait      = 7500 * time.Millisecond
)

// HIDJob describes one USB-HID SRAM flash request. Destructive writes are
// never valid here; the dispatcher enforces that before calling in.
type HIDJob struct {
	// SessionID correlates this job's log lines with the Dispatcher session
	// that issued it; empty when FlashUSBHID is called directly.
	SessionID     string
	Image         []byte
	ClearUserData bool
	ExpectedCRC   string
}

// FlashUSBHID drives the running firmware's SRAM staging protocol of §4.5:
// stream the image into SRAM in batches, verify its CRC on-device, then
// commit SRAM to flash.
func FlashUSBHID(ctx context.Context, ch HIDChannel, job HIDJob, sink ProgressSink) (_ Result, err error) {
	if sink == nil {
		sink = NopProgressSink{}
	}
	defer func() {
		if err != nil {
			pkgLog.Debugf("flash %s: usb-hid session aborted: %v", job.SessionID, err)
			sink.Aborted(err)
		}
	}()
	if err := validateImage(job.Image, false, true); err != nil {
		return Result{}, err
	}

	pkgLog.Debugf("flash %s: usb-hid session starting, %d bytes", job.SessionID, len(job.Image))

	if err := hidInitSRAM(ctx, ch); err != nil {
		return Result{}, err
	}

	if err := streamSRAM(ctx, ch, job.Image, sink); err != nil {
		return Result{}, err
	}

	expected := job.ExpectedCRC
	if expected == "" {
		expected = crcHex(imageCRC(job.Image))
	}

	receivedCRC, err := verifySRAMCRC(ctx, ch)
	if err != nil {
		return Result{}, err
	}
	if receivedCRC != expected {
		return Result{}, &CRCMismatchError{Expected: expected, Actual: receivedCRC}
	}

	if job.ClearUserData {
		resp, err := ch.SendPacket(ctx, []byte{hidRespClearUserData})
		if err != nil {
			return Result{}, err
		}
		if !hidSuccess(resp) {
			return Result{}, ErrUserDataClearFailed
		}
	}

	resp, err := ch.SendPacket(ctx, []byte{hidRespFlashFW})
	if err != nil {
		return Result{}, err
	}
	if !hidSuccess(resp) {
		return Result{}, errors.New("audiomoth: device refused FLASH_FW")
	}

	sink.Restarting(int(hidRebootWait / time.Millisecond))
	if err := sleepCtx(ctx, hidRebootWait); err != nil {
		return Result{}, err
	}
	pkgLog.Debugf("flash %s: usb-hid session completed, CRC %s", job.SessionID, receivedCRC)
	sink.Completed()

	return Result{ReceivedCRC: receivedCRC}, nil
}

func hidInitSRAM(ctx context.Context, ch HIDChannel) error {
	resp, err := ch.SendPacket(ctx, []byte{hidRespInitSRAM})
	if err != nil {
		return err
	}
	if !hidSuccess(resp) {
		return &DeviceUnreachableError{Op: "INIT_SRAM"}
	}
	return nil
}

// streamSRAM transmits the image, unpadded, in SET_SRAM_FW_PACKET batches,
// batchSizeWindows packets at a time on Windows hosts, batchSizeOther
// elsewhere — the
// smaller batch avoids overrunning the Windows HID driver's internal queue.
func streamSRAM(ctx context.Context, ch HIDChannel, image []byte, sink ProgressSink) error {
	batchSize := batchSizeOther
	if runtime.GOOS == "windows" {
		batchSize = batchSizeWindows
	}

	total := len(image)
	packets := buildSRAMPackets(image)

	for i := 0; i < len(packets); i += batchSize {
		end := i + batchSize
		if end > len(packets) {
			end = len(packets)
		}
		batch := packets[i:end]
		if _, err := ch.SendMultiple(ctx, batch); err != nil {
			return err
		}
		sent := end * sramPacketPayload
		if sent > total {
			sent = total
		}
		sink.Flashing(total, sent)
		if err := sleepCtx(ctx, interBatchSleep); err != nil {
			return err
		}
	}
	return nil
}

// buildSRAMPackets slices image into SET_SRAM_FW_PACKET frames:
// [0x04, off0..off3 (LE), numBytes, payload...].
func buildSRAMPackets(image []byte) [][]byte {
	var packets [][]byte
	for off := 0; off < len(image); off += sramPacketPayload {
		end := off + sramPacketPayload
		if end > len(image) {
			end = len(image)
		}
		chunk := image[off:end]
		pkt := make([]byte, 6+len(chunk))
		pkt[0] = hidRespSetSRAM
		pkt[1] = byte(off)
		pkt[2] = byte(off >> 8)
		pkt[3] = byte(off >> 16)
		pkt[4] = byte(off >> 24)
		pkt[5] = byte(len(chunk))
		copy(pkt[6:], chunk)
		packets = append(packets, pkt)
	}
	return packets
}

// verifySRAMCRC requests CALC_SRAM_CRC then polls GET_FW_CRC until the
// device reports a computed value.
func verifySRAMCRC(ctx context.Context, ch HIDChannel) (string, error) {
	if _, err := ch.SendPacket(ctx, []byte{hidRespCalcSRAMCRC}); err != nil {
		return "", err
	}
	for attempt := 0; attempt < fwCRCPollAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, fwCRCPollInterval); err != nil {
				return "", err
			}
		}
		resp, err := ch.SendPacket(ctx, []byte{hidRespGetFWCRC})
		if err != nil {
			continue
		}
		if hidSuccess(resp) && len(resp) >= 5 {
			crc := uint16(resp[3]) | uint16(resp[4])<<8
			return crcHex(crc), nil
		}
	}
	return "", ErrCRCTimeout
}

func hidSuccess(resp []byte) bool {
	return len(resp) > 2 && resp[2] == 0x01
}
