package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NotifyInvalidate asks the control server at addr to drop its cached
// binding for guildID.
func NotifyInvalidate(ctx context.Context, addr, guildID string) error {
	body, err := json.Marshal(map[string]string{"guild_id": guildID})
	if err != nil {
		return err
	}

	url := strings.TrimSpace(addr)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(url, "/")+InvalidatePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify control server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify control server: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
