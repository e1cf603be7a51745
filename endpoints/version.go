package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
)

const versionValueNotSet = "not-set"

// NewVersionEndpoint reports the git tag and commit the binary was built from.
func NewVersionEndpoint(version, revision string) httprouter.Handle {
	if version == "" {
		version = versionValueNotSet
	}
	if revision == "" {
		revision = versionValueNotSet
	}
	response, err := json.Marshal(struct {
		Revision string `json:"revision"`
		Version  string `json:"version"`
	}{
		Revision: revision,
		Version:  version,
	})
	if err != nil {
		glog.Fatalf("error creating /version endpoint response: %v", err)
	}

	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Add("Content-Type", "application/json")
		w.Write(response)
	}
}
