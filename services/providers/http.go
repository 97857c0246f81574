package providers

import (
	"fmt"
	"io"
	"net/http"
)

// maxBodySize bounds how much of an upstream body is read
const maxBodySize = 4 << 20

// Send executes req and returns the body of a 2xx response. Transport failures
// and other statuses come back as *ClassifiedError; errMessage extracts a
// readable message from an error body.
func Send(client *http.Client, req *http.Request, provider string, errMessage func(body []byte) string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, ClassifyTransport(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewClassifiedError(provider, KindInvalidResponse, resp.StatusCode, "failed to read response", true, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if errMessage != nil {
			msg = errMessage(body)
		}
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %s", resp.Status)
		}
		return nil, ClassifyStatus(provider, resp.StatusCode, msg)
	}
	return body, nil
}
