package endpoints

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Status handles GET /status.
func Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// could add more logic here, but doing nothing means 200 OK
}

// ServeIndex handles GET /.
func ServeIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.ServeFile(w, r, "static/index.html")
}
