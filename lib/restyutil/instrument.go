package restyutil

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// InstrumentClient writes every exchange of client to output, file names are
// a running number followed by the request path.
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&idcounter, 1)
		output.Write(messageId(id, res.Request), FormatHttpMessage(res))
		return nil
	})
}

func messageId(id uint64, req *resty.Request) string {
	path := req.URL
	if req.RawRequest != nil {
		path = req.RawRequest.URL.Path
	}
	path = strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	if path == "" {
		path = "root"
	}
	return fmt.Sprintf("%03d-%s-%s.txt", id, strings.ToLower(req.Method), path)
}
