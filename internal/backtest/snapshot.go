package backtest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	snapshotWidth   = 1400
	snapshotHeight  = 900
	snapshotTimeout = 20 * time.Second
	// echarts animates in; the screenshot waits for it to settle
	snapshotSettle = 1500 * time.Millisecond
)

// Snapshot renders the html report at htmlPath to a PNG next to it and
// returns the PNG path. It needs a local Chrome or Chromium.
func Snapshot(ctx context.Context, htmlPath string) (string, error) {
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		return "", err
	}
	png, err := renderHTMLToPNG(ctx, html, snapshotWidth, snapshotHeight)
	if err != nil {
		return "", fmt.Errorf("screenshot %s: %w", htmlPath, err)
	}
	out := strings.TrimSuffix(htmlPath, ".html") + ".png"
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, snapshotTimeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(snapshotSettle),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
