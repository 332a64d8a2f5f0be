package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/pkg/response"
)

// maxBodyBytes bounds JSON bodies, which may carry base64 audio.
const maxBodyBytes = 20 << 20

// AudioPayload is a base64-encoded recording.
type AudioPayload struct {
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
}

// audio decodes the payload. Empty data is left to the caller to reject.
func (p AudioPayload) audio() (gateway.Audio, error) {
	data, err := base64.StdEncoding.DecodeString(p.AudioBase64)
	if err != nil {
		return gateway.Audio{}, errors.Validation("audioBase64 is not valid base64")
	}
	return gateway.Audio{Data: data, MIMEType: p.MimeType}, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Validation("invalid request body")
	}
	return nil
}

// waitParam reads the ?wait=true flag.
func waitParam(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}

func handleError(log zerolog.Logger, w http.ResponseWriter, err error) {
	appErr := errors.As(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(appErr.Code)).Msg("Request failed")
	}
	response.Error(w, status, &response.ErrorBody{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
