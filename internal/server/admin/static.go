package admin

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed ui
var uiFS embed.FS

// StaticUI serves the embedded single-page admin app.
func StaticUI() gin.HandlerFunc {
	sub, err := fs.Sub(uiFS, "ui")
	if err != nil {
		panic(err)
	}
	fileServer := http.StripPrefix("/admin", http.FileServer(http.FS(sub)))

	return func(c *gin.Context) {
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}
