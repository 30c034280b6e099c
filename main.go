package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/sheep-cloud12138/MyWebServer/app"
	"github.com/sheep-cloud12138/MyWebServer/config"
)

const defaultIndex = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>MyWebServer</title></head>
<body><h1>MyWebServer</h1></body>
</html>
`

// seedRoot makes sure the document root exists and serves something on /.
func seedRoot(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	index := filepath.Join(root, "index.html")
	if _, err := os.Stat(index); os.IsNotExist(err) {
		return os.WriteFile(index, []byte(defaultIndex), 0644)
	}
	return nil
}

func main() {
	cfg := config.New()

	if err := seedRoot(cfg.RootDir); err != nil {
		log.Fatalf("document root: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
