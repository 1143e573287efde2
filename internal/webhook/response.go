package webhook

import "net/http"

const (
	contentTypeXML  = "text/xml"
	contentTypeText = "text/plain; charset=utf-8"
)

// twimlAck is the empty TwiML document the carrier expects from an SMS callback.
var twimlAck = []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, contentTypeText, []byte(msg))
}
