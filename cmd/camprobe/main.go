package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"camrelay/internal/mjpeg"
)

func main() {
	var url string
	var reportEvery int
	var once bool
	flag.StringVar(&url, "url", "http://127.0.0.1:8080/", "MJPEG stream URL to probe")
	flag.IntVar(&reportEvery, "report-every", 25, "log a summary every N frames")
	flag.BoolVar(&once, "once", false, "exit after the stream ends instead of reconnecting")
	flag.Parse()

	log.Printf("camprobe starting url=%s", url)
	for {
		if err := runOnce(url, reportEvery); err != nil {
			log.Printf("stream ended: %v", err)
		}
		if once {
			return
		}
		time.Sleep(2 * time.Second)
		log.Printf("reconnecting...")
	}
}

func runOnce(url string, reportEvery int) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	contentType := resp.Header.Get("Content-Type")
	boundary := mjpeg.ExtractBoundary(contentType)
	if boundary == "" {
		return fmt.Errorf("no multipart boundary in %q", contentType)
	}
	log.Printf("connected status=%s boundary=%s", resp.Status, boundary)

	mr := multipart.NewReader(resp.Body, boundary)
	frames := 0
	var total int64
	window := time.Now()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		n, err := io.Copy(io.Discard, part)
		if err != nil {
			return err
		}
		frames++
		total += n
		if frames%reportEvery == 0 {
			elapsed := time.Since(window).Seconds()
			log.Printf("frames=%d last_frame_bytes=%d fps=%.1f total_bytes=%d", frames, n, float64(reportEvery)/elapsed, total)
			window = time.Now()
		}
	}
}
