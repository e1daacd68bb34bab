package audiomoth

import (
	"context"
	"log"
	"os"
)

func Example() {
	imageBytes, err := os.ReadFile("firmware.bin")
	if err != nil {
		log.Fatal(err)
	}

	dispatcher := NewDispatcher(nil, NopProgressSink{})

	result, err := dispatcher.Flash(context.Background(), Options{
		Image:       imageBytes,
		Filename:    "firmware.bin",
		ExpectedCRC: "0A1B",
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("flashed, device reported CRC %s", result.ReceivedCRC)
}
