// Command camsim streams synthetic camera frames to a frame server.
//
// It connects over TCP, identifies itself with the device handshake, and
// sends JPEG frames of a solid block drifting vertically through the
// image. Pointing a detector stub or a real model at these frames
// exercises the whole ingestion pipeline without hardware.
//
// Usage:
//
//	go run ./cmd/camsim [flags]
//
// Flags:
//
//	-addr    Frame server address (default: localhost:5005)
//	-device  Device id sent in the handshake (default: camsim-01)
//	-fps     Frames per second (default: 10)
//	-frames  Total frames to send, 0 for unlimited (default: 0)
package main

import (
	"bytes"
	"flag"
	"image"
	"image/color"
	"image/draw"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/cabinet.report/internal/camera"
)

const (
	frameWidth  = 640
	frameHeight = 480
	blockSize   = 80
)

func main() {
	addr := flag.String("addr", "localhost:5005", "Frame server address")
	device := flag.String("device", "camsim-01", "Device id for the handshake")
	fps := flag.Int("fps", 10, "Frames per second")
	frames := flag.Int("frames", 0, "Total frames to send (0 = unlimited)")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	if err := camera.WriteHandshake(conn, *device); err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}
	log.Printf("Connected to %s as %s", *addr, *device)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-sigCh:
			log.Printf("Interrupted after %d frames", sent)
			return
		case <-ticker.C:
			payload, err := renderFrame(sent)
			if err != nil {
				log.Fatalf("Failed to render frame: %v", err)
			}
			if err := camera.WriteMessage(conn, payload); err != nil {
				log.Fatalf("Failed to send frame %d: %v", sent, err)
			}
			sent++
			if *frames > 0 && sent >= *frames {
				log.Printf("Sent %d frames, done", sent)
				return
			}
		}
	}
}

// renderFrame draws the drifting block. The block sweeps top to bottom
// over 100 frames and wraps, so it crosses a horizontal mid-frame
// boundary once per sweep.
func renderFrame(seq int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{30, 30, 30, 255}), image.Point{}, draw.Src)

	progress := float64(seq%100) / 100.0
	y := int(progress * float64(frameHeight-blockSize))
	x := (frameWidth - blockSize) / 2
	block := image.Rect(x, y, x+blockSize, y+blockSize)
	draw.Draw(img, block, image.NewUniform(color.RGBA{220, 40, 40, 255}), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
