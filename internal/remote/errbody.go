package remote

import (
	"net/http"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxErrorBody = 512

// describeBody turns an error response body into a short readable message.
// Proxies and framework error pages answer in HTML; those are converted to
// markdown so the failure event stays legible.
func describeBody(header http.Header, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(header.Get("Content-Type")), "text/html") {
		if md, err := htmltomarkdown.ConvertString(text); err == nil {
			text = strings.TrimSpace(md)
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: describeBody(resp.Header, body)}
}
