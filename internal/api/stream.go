package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"audiodigest/internal/models"
)

// streamEvents frames every event as an SSE data line and returns after
// the terminal one or the first failed write.
func streamEvents(c *gin.Context, flusher http.Flusher, events <-chan models.ProgressEvent) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeEvent(c.Writer, ev); err != nil {
			return
		}
		flusher.Flush()
		if ev.Terminal() {
			return
		}
	}
}

func writeEvent(w io.Writer, ev models.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
