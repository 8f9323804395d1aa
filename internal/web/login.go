package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	webassets "github.com/tyemirov/stravarelay/web"
)

var loginTemplate = template.Must(template.ParseFS(webassets.FS, "login.html"))

// LoginPage renders the link that starts the provider authorization flow.
func LoginPage(authorizationURL string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var rendered bytes.Buffer
		if err := loginTemplate.Execute(&rendered, struct{ AuthorizationURL string }{authorizationURL}); err != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.Header("Cache-Control", "no-store")
		contextGin.Data(http.StatusOK, "text/html; charset=UTF-8", rendered.Bytes())
	}
}
