package core

import (
	"log"

	"github.com/fatih/color"

	"github.com/sheep-cloud12138/MyWebServer/core/http"
)

// logRequest logs a served request with color-coded status.
func logRequest(peer, method, path string, status int) {
	switch status {
	case http.StatusOK:
		log.Print(color.GreenString("%s %s %s %d", peer, method, path, status))
	case http.StatusForbidden, http.StatusNotFound:
		log.Print(color.RedString("%s %s %s %d", peer, method, path, status))
	default:
		log.Printf("%s %s %s %d", peer, method, path, status)
	}
}
